package server

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

// Coordinator is what the gRPC surface delegates to.
type Coordinator interface {
	SubmitBatch(ctx context.Context, entries []entity.DocumentEntry, keywords []string) ([]entity.TaskHandle, error)
	GetStatus(ctx context.Context, handle entity.TaskHandle) (*entity.TaskStatus, error)
}

type submitBatchRequest struct {
	Entries  []entity.DocumentEntry `json:"entries"`
	Keywords []string               `json:"keywords"`
}

type submitBatchResponse struct {
	TaskHandles []entity.TaskHandle `json:"task_handles"`
}

type getStatusRequest struct {
	Handle string `json:"handle"`
}

type ScanService struct {
	coord  Coordinator
	logger *zap.Logger
}

var _ ScanServiceServer = (*ScanService)(nil)

func NewScanService(coord Coordinator, logger *zap.Logger) *ScanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanService{coord: coord, logger: logger}
}

func (s *ScanService) SubmitBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in submitBatchRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if len(in.Entries) == 0 || len(in.Keywords) == 0 {
		return nil, status.Error(codes.InvalidArgument, "entries and keywords are required")
	}

	handles, err := s.coord.SubmitBatch(ctx, in.Entries, in.Keywords)
	if err != nil {
		if !common.IsValidation(err) {
			s.logger.Warn("submit batch failed", zap.Error(err))
			return nil, status.Error(codes.Internal, "submit batch failed")
		}
		return nil, common.ToGRPCError(err)
	}
	return toStruct(submitBatchResponse{TaskHandles: handles})
}

func (s *ScanService) GetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in getStatusRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	handle := strings.TrimSpace(in.Handle)
	if handle == "" {
		return nil, status.Error(codes.InvalidArgument, "handle is required")
	}

	st, err := s.coord.GetStatus(ctx, entity.TaskHandle(handle))
	if err != nil {
		s.logger.Warn("get status failed", zap.String("task_id", handle), zap.Error(err))
		return nil, status.Error(codes.Internal, "get status failed")
	}
	return toStruct(st)
}

func fromStruct(in *structpb.Struct, dst any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
