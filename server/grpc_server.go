package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/INLOpen/nexuslake/config"
	"github.com/INLOpen/nexuslake/core"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GRPCServer wraps the grpc.Server and implements the Lake service.
type GRPCServer struct {
	lake      *DocumentLake
	server    *grpc.Server
	healthSrv *health.Server
	logger    *slog.Logger
}

var _ LakeServiceServer = (*GRPCServer)(nil)

// NewGRPCServer creates and configures a new gRPC server instance serving l.
func NewGRPCServer(l *DocumentLake, cfg *config.ServerConfig, logger *slog.Logger) (*GRPCServer, error) {
	s := &GRPCServer{
		lake:      l,
		logger:    logger.With("component", "GRPCServer"),
		healthSrv: health.NewServer(),
	}

	var opts []grpc.ServerOption
	if cfg.TLS.Enabled {
		creds, err := loadTLSCredentials(&cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("could not load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
		s.logger.Info("gRPC server initialized with TLS.")
	} else {
		s.logger.Info("gRPC server initialized without TLS (insecure).")
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(NewLoggingInterceptor(logger).Unary()))

	s.server = grpc.NewServer(opts...)
	RegisterLakeServiceServer(s.server, s)
	grpc_health_v1.RegisterHealthServer(s.server, s.healthSrv)
	reflection.Register(s.server)
	s.healthSrv.SetServingStatus(LakeServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return s, nil
}

// Start begins listening for gRPC requests.
func (s *GRPCServer) Start(lis net.Listener) error {
	s.logger.Info("gRPC server listening", "address", lis.Addr().String())
	return s.server.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *GRPCServer) Stop() {
	s.logger.Info("Stopping gRPC server...")
	if s.healthSrv != nil {
		s.healthSrv.Shutdown()
	}
	if s.server != nil {
		s.server.GracefulStop()
	}
	s.logger.Info("gRPC server stopped.")
}

func loadTLSCredentials(cfg *config.TLSConfig) (credentials.TransportCredentials, error) {
	serverCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.NoClientCert,
	}
	return credentials.NewTLS(tlsConfig), nil
}

// toStatus maps lake errors to gRPC status codes.
func toStatus(err error, msg string) error {
	switch {
	case errors.Is(err, core.ErrClosed):
		return status.Errorf(codes.Unavailable, "%s: %v", msg, err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: %v", msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", msg, err)
	case core.IsCorruptRecord(err):
		return status.Errorf(codes.DataLoss, "%s: %v", msg, err)
	default:
		return status.Errorf(codes.Internal, "%s: %v", msg, err)
	}
}

// Insert handles the gRPC request to store one document.
func (s *GRPCServer) Insert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc := Document{Fields: req}
	if doc.Key() == "" {
		return nil, status.Errorf(codes.InvalidArgument, "document must have a non-empty string %q field", DocumentKeyField)
	}
	loc, err := s.lake.Insert(ctx, doc)
	if err != nil {
		return nil, toStatus(err, "insert failed")
	}
	return structpb.NewStruct(map[string]interface{}{
		"file_id": loc.FileID,
		"offset":  loc.Offset,
	})
}

// Lookup handles the gRPC request for every version of a key.
func (s *GRPCServer) Lookup(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	docs, err := s.lake.Lookup(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err, "lookup failed")
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(docs))}
	for _, d := range docs {
		out.Values = append(out.Values, structpb.NewStructValue(d.Fields))
	}
	return out, nil
}

// Latest handles the gRPC request for the newest version of a key.
func (s *GRPCServer) Latest(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	doc, ok, err := s.lake.Latest(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err, "latest failed")
	}
	if !ok {
		return nil, status.Errorf(codes.NotFound, "key %q not found", req.GetValue())
	}
	return doc.Fields, nil
}

// Delete handles the gRPC request to drop a key from the index.
func (s *GRPCServer) Delete(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.lake.Delete(ctx, req.GetValue())), nil
}

// Rebuild handles the gRPC request to rebuild the index from the log files.
func (s *GRPCServer) Rebuild(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	report, err := s.lake.Rebuild(ctx)
	if err != nil {
		return nil, toStatus(err, "rebuild failed")
	}
	truncated := make([]interface{}, 0, len(report.TruncatedFiles))
	for _, id := range report.TruncatedFiles {
		truncated = append(truncated, id)
	}
	corrupt := make([]interface{}, 0, len(report.CorruptFiles))
	for _, cf := range report.CorruptFiles {
		corrupt = append(corrupt, map[string]interface{}{
			"file_id": cf.FileID,
			"offset":  cf.Offset,
			"error":   cf.Err.Error(),
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"files_scanned":   report.FilesScanned,
		"records_indexed": report.RecordsIndexed,
		"keys_indexed":    report.KeysIndexed,
		"truncated_files": truncated,
		"corrupt_files":   corrupt,
		"duration_ms":     report.Duration.Milliseconds(),
	})
}

// ListKeys handles the gRPC request for the indexed keys in ascending order.
func (s *GRPCServer) ListKeys(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	keys := s.lake.IndexedKeys()
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(keys))}
	for _, k := range keys {
		out.Values = append(out.Values, structpb.NewStringValue(k))
	}
	return out, nil
}

// Stats handles the gRPC request for a summary of the lake.
func (s *GRPCServer) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.lake.Stats()
	files := make([]interface{}, 0, len(st.ReferencedFiles))
	for _, id := range st.ReferencedFiles {
		files = append(files, id)
	}
	return structpb.NewStruct(map[string]interface{}{
		"dir":                  st.Dir,
		"session_id":           st.SessionID,
		"indexed_keys":         st.IndexedKeys,
		"indexed_locations":    st.IndexedLocations,
		"active_file_id":       st.ActiveFileID,
		"referenced_files":     files,
		"value_cache_entries":  st.ValueCacheEntries,
		"value_cache_hit_rate": st.ValueCacheHitRate,
		"uptime_seconds":       st.Uptime.Seconds(),
	})
}
