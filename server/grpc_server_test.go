package server

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/INLOpen/nexuslake/config"
	"github.com/INLOpen/nexuslake/internal/testutil"
	"github.com/INLOpen/nexuslake/lake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openDocumentLake(t *testing.T, dir string) *DocumentLake {
	t.Helper()
	cfg := config.Default().Lake
	cfg.DataDir = dir
	opts, err := config.ToOptions[string, Document](cfg, DocumentMarshaler{})
	require.NoError(t, err)
	opts.Logger = discardLogger()
	l, err := lake.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

type testServer struct {
	lake   *DocumentLake
	client *LakeServiceClient
	conn   *grpc.ClientConn
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()
	l := openDocumentLake(t, t.TempDir())

	cfg := config.Default()
	cfg.Debug.Enabled = false
	lis := testutil.NewBufconnListener(0)
	app, err := NewAppServer(l, cfg, lis, discardLogger())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- app.Start() }()

	conn, err := testutil.DialBufconn(lis)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		app.Stop()
		require.NoError(t, <-errCh)
	})
	return &testServer{lake: l, client: NewLakeServiceClient(conn), conn: conn}
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestGRPCServer_InsertLookupLatest(t *testing.T) {
	ts := startTestServer(t)
	ctx := context.Background()

	loc, err := ts.client.Insert(ctx, mustStruct(t, map[string]interface{}{"id": "sensor-1", "temp": 20.5}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), loc.GetFields()["file_id"].GetNumberValue())
	_, err = ts.client.Insert(ctx, mustStruct(t, map[string]interface{}{"id": "sensor-1", "temp": 21.0}))
	require.NoError(t, err)

	versions, err := ts.client.Lookup(ctx, wrapperspb.String("sensor-1"))
	require.NoError(t, err)
	require.Len(t, versions.GetValues(), 2)
	assert.Equal(t, 20.5, versions.GetValues()[0].GetStructValue().GetFields()["temp"].GetNumberValue())
	assert.Equal(t, 21.0, versions.GetValues()[1].GetStructValue().GetFields()["temp"].GetNumberValue())

	latest, err := ts.client.Latest(ctx, wrapperspb.String("sensor-1"))
	require.NoError(t, err)
	assert.Equal(t, 21.0, latest.GetFields()["temp"].GetNumberValue())

	empty, err := ts.client.Lookup(ctx, wrapperspb.String("missing"))
	require.NoError(t, err)
	assert.Empty(t, empty.GetValues())

	_, err = ts.client.Latest(ctx, wrapperspb.String("missing"))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCServer_InsertRequiresID(t *testing.T) {
	ts := startTestServer(t)

	_, err := ts.client.Insert(context.Background(), mustStruct(t, map[string]interface{}{"temp": 1}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = ts.client.Insert(context.Background(), mustStruct(t, map[string]interface{}{"id": 7}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCServer_DeleteRebuildAndKeys(t *testing.T) {
	ts := startTestServer(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "b"} {
		_, err := ts.client.Insert(ctx, mustStruct(t, map[string]interface{}{"id": id}))
		require.NoError(t, err)
	}

	keys, err := ts.client.ListKeys(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	require.Len(t, keys.GetValues(), 2)
	assert.Equal(t, "a", keys.GetValues()[0].GetStringValue())
	assert.Equal(t, "b", keys.GetValues()[1].GetStringValue())

	removed, err := ts.client.Delete(ctx, wrapperspb.String("b"))
	require.NoError(t, err)
	assert.True(t, removed.GetValue())
	versions, err := ts.client.Lookup(ctx, wrapperspb.String("b"))
	require.NoError(t, err)
	assert.Empty(t, versions.GetValues())

	report, err := ts.client.Rebuild(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, float64(3), report.GetFields()["records_indexed"].GetNumberValue())
	assert.Equal(t, float64(2), report.GetFields()["keys_indexed"].GetNumberValue())

	versions, err = ts.client.Lookup(ctx, wrapperspb.String("b"))
	require.NoError(t, err)
	assert.Len(t, versions.GetValues(), 2)

	stats, err := ts.client.Stats(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, float64(2), stats.GetFields()["indexed_keys"].GetNumberValue())
	assert.Equal(t, float64(3), stats.GetFields()["indexed_locations"].GetNumberValue())
}

func TestGRPCServer_Health(t *testing.T) {
	ts := startTestServer(t)

	resp, err := grpc_health_v1.NewHealthClient(ts.conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: LakeServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCServer_ClosedLake(t *testing.T) {
	ts := startTestServer(t)
	require.NoError(t, ts.lake.Close())

	_, err := ts.client.Insert(context.Background(), mustStruct(t, map[string]interface{}{"id": "x"}))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestDocument_KeyAndMarshal(t *testing.T) {
	doc, err := NewDocument(map[string]interface{}{"id": "k1", "n": 3})
	require.NoError(t, err)
	assert.Equal(t, "k1", doc.Key())
	assert.Equal(t, "", Document{}.Key())

	data, err := DocumentMarshaler{}.Marshal(doc)
	require.NoError(t, err)
	back, err := DocumentMarshaler{}.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "k1", back.Key())
	assert.Equal(t, float64(3), back.Fields.GetFields()["n"].GetNumberValue())
}
