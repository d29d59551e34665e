package grpcclient

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/deepfake-detect/internal/classifier"
	"github.com/example/deepfake-detect/internal/logging"
)

// PredictMethod is the full gRPC method name served by the inference service.
// It takes the raw image bytes and answers with the manipulation probability.
const PredictMethod = "/deepfake.v1.Classifier/Predict"

// Invoker is the subset of *grpc.ClientConn used by the classifier.
type Invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// DialClassifier connects to a remote inference service.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger) (classifier.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial inference service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewRemoteClassifier(conn, logger), conn, nil
}

// NewRemoteClassifier wraps an established connection.
func NewRemoteClassifier(conn Invoker, logger *zap.Logger) *RemoteClassifier {
	return &RemoteClassifier{conn: conn, logger: logger.Named("remote_classifier")}
}

// RemoteClassifier delegates preprocessing and inference to another process.
type RemoteClassifier struct {
	conn   Invoker
	logger *zap.Logger
}

// Predict reads the image at path and sends it for classification.
func (r *RemoteClassifier) Predict(ctx context.Context, path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read upload: %w", err)
	}

	reply := &wrapperspb.FloatValue{}
	if err := r.conn.Invoke(ctx, PredictMethod, wrapperspb.Bytes(data), reply); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", "", err)
		r.logger.Error("inference call failed", zap.Error(wrapped), zap.Int("bytes", len(data)))
		return 0, wrapped
	}
	return float64(reply.GetValue()), nil
}
