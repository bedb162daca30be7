//go:build protogen

package schedgrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/j-arredondo/cleansched/internal/schedule"
	"github.com/j-arredondo/cleansched/internal/storage"
	schedulingv1 "github.com/j-arredondo/cleansched/protos/gen/scheduling/v1"
)

type server struct {
	schedulingv1.UnimplementedSchedulingServiceServer
	services  *storage.ServiceRepository
	employees *storage.EmployeeRepository
	engine    *schedule.Engine
	loc       *time.Location
}

func Register(grpcServer *grpc.Server, services *storage.ServiceRepository, employees *storage.EmployeeRepository, engine *schedule.Engine, loc *time.Location) {
	schedulingv1.RegisterSchedulingServiceServer(grpcServer, &server{
		services:  services,
		employees: employees,
		engine:    engine,
		loc:       loc,
	})
}

func (s *server) CheckSlot(ctx context.Context, req *schedulingv1.CheckSlotRequest) (*schedulingv1.CheckSlotResponse, error) {
	if req.GetServiceId() == 0 || len(req.GetEmployeeIds()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "service_id and employee_ids required")
	}
	date, err := time.ParseInLocation("2006-01-02", req.GetDate(), s.loc)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}
	clock, err := time.Parse("15:04", req.GetStartTime())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "start_time must be HH:MM")
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, s.loc)

	svc, err := s.services.GetActive(ctx, req.GetServiceId())
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, status.Error(codes.NotFound, "service not found")
		}
		return nil, status.Error(codes.Internal, "service lookup failed")
	}

	res, err := s.engine.CheckSlot(ctx, svc, req.GetEmployeeIds(), date, start, 0)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, status.Error(codes.NotFound, "employee not found")
		}
		return nil, status.Error(codes.Internal, "availability check failed")
	}

	resp := &schedulingv1.CheckSlotResponse{
		Outcome:    res.Outcome.String(),
		StartTime:  res.Window.ServiceStart.Format(time.RFC3339),
		EndTime:    res.Window.ServiceEnd.Format(time.RFC3339),
		EmployeeId: res.EmployeeID,
	}
	if res.Conflict != nil {
		resp.ConflictingAppointmentId = res.Conflict.AppointmentID
	}
	return resp, nil
}

func (s *server) ListFreeSlots(ctx context.Context, req *schedulingv1.ListFreeSlotsRequest) (*schedulingv1.ListFreeSlotsResponse, error) {
	if req.GetServiceId() == 0 {
		return nil, status.Error(codes.InvalidArgument, "service_id required")
	}
	date, err := time.ParseInLocation("2006-01-02", req.GetDate(), s.loc)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}

	svc, err := s.services.GetActive(ctx, req.GetServiceId())
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, status.Error(codes.NotFound, "service not found")
		}
		return nil, status.Error(codes.Internal, "service lookup failed")
	}

	candidates := req.GetEmployeeIds()
	if len(candidates) == 0 {
		emps, err := s.employees.ListActiveByService(ctx, req.GetServiceId())
		if err != nil {
			return nil, status.Error(codes.Internal, "employee lookup failed")
		}
		for _, emp := range emps {
			candidates = append(candidates, emp.ID)
		}
	}

	slots, err := s.engine.ListFreeSlots(ctx, svc, date, candidates, time.Duration(req.GetStepMins())*time.Minute)
	if err != nil {
		return nil, status.Error(codes.Internal, "availability check failed")
	}

	resp := &schedulingv1.ListFreeSlotsResponse{Date: date.Format("2006-01-02")}
	for _, slot := range slots {
		resp.Slots = append(resp.Slots, &schedulingv1.FreeSlot{
			StartTime:   slot.Start.Format(time.RFC3339),
			EndTime:     slot.Start.Add(svc.Duration()).Format(time.RFC3339),
			EmployeeIds: slot.EmployeeIDs,
		})
	}
	return resp, nil
}
