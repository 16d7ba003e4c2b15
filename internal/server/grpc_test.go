package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/resume-scanner/constants"
	"github.com/joseph-ayodele/resume-scanner/internal/batch"
	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/core"
	queue "github.com/joseph-ayodele/resume-scanner/internal/core/async"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
	"github.com/joseph-ayodele/resume-scanner/internal/repository"
)

type staticProcessor struct{}

func (staticProcessor) Process(_ context.Context, task core.ScanTask) (*entity.ScanResult, error) {
	return &entity.ScanResult{
		UserID:            task.Entry.UserID,
		ResumeURL:         task.Entry.ResumeURL,
		Percentage:        100,
		MatchedKeywords:   task.Keywords,
		PresentVocabulary: []string{},
	}, nil
}

func dial(t *testing.T) *grpc.ClientConn {
	t.Helper()

	store := repository.NewMemoryStore()
	q := queue.NewProcessorQueue(staticProcessor{}, store, nil, queue.WithWorkers(1))
	t.Cleanup(func() { q.Shutdown(context.Background()) })

	logger := zap.NewNop()
	srv := New(NewScanService(batch.NewService(q, store, nil), logger), logger)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestScanService_SubmitAndPoll(t *testing.T) {
	t.Parallel()

	client := NewScanServiceClient(dial(t))
	ctx := context.Background()

	out, err := client.SubmitBatch(ctx, mustStruct(t, map[string]any{
		"entries":  []any{map[string]any{"user_id": "u1", "resume_url": "https://x/resume.pdf"}},
		"keywords": []any{"Python", "Go"},
	}))
	require.NoError(t, err)
	handles := out.GetFields()["task_handles"].GetListValue().GetValues()
	require.Len(t, handles, 1)
	handle := handles[0].GetStringValue()
	require.NotEmpty(t, handle)

	var st *structpb.Struct
	require.Eventually(t, func() bool {
		st, err = client.GetStatus(ctx, mustStruct(t, map[string]any{"handle": handle}))
		return err == nil && st.GetFields()["state"].GetStringValue() == string(constants.TaskStateSucceeded)
	}, 5*time.Second, 10*time.Millisecond)

	result := st.GetFields()["result"].GetStructValue()
	require.NotNil(t, result)
	assert.Equal(t, "u1", result.GetFields()["user_id"].GetStringValue())
	assert.InDelta(t, 100, result.GetFields()["percentage"].GetNumberValue(), 1e-9)
	_, isNull := st.GetFields()["error"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
}

func TestScanService_InvalidArgument(t *testing.T) {
	t.Parallel()

	client := NewScanServiceClient(dial(t))
	ctx := context.Background()

	_, err := client.SubmitBatch(ctx, mustStruct(t, map[string]any{"keywords": []any{"Go"}}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.SubmitBatch(ctx, mustStruct(t, map[string]any{
		"entries":  []any{map[string]any{"user_id": "u1", "resume_url": "not a url"}},
		"keywords": []any{"Go"},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetStatus(ctx, mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestScanService_UnknownHandleIsPending(t *testing.T) {
	t.Parallel()

	client := NewScanServiceClient(dial(t))
	st, err := client.GetStatus(context.Background(), mustStruct(t, map[string]any{"handle": "never-issued"}))
	require.NoError(t, err)
	assert.Equal(t, "pending", st.GetFields()["state"].GetStringValue())
}

func TestHealthService(t *testing.T) {
	t.Parallel()

	resp, err := healthpb.NewHealthClient(dial(t)).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ScanServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem, err := OpenStore(ctx, common.StoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.NoError(t, mem.Ping(ctx))
	mem.Close(nil)

	sq, err := OpenStore(ctx, common.StoreConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close(nil) })
	assert.NoError(t, sq.Ping(ctx))

	h := entity.NewTaskHandle()
	require.NoError(t, sq.RecordState(ctx, h, constants.TaskStatePending))
	rec, err := sq.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStatePending, rec.State)
}
