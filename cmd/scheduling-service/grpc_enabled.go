//go:build protogen

package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/j-arredondo/cleansched/internal/schedgrpc"
	"github.com/j-arredondo/cleansched/internal/schedule"
	"github.com/j-arredondo/cleansched/internal/storage"
	"github.com/j-arredondo/cleansched/libs/config"
	"github.com/j-arredondo/cleansched/libs/grpcx"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, services *storage.ServiceRepository, employees *storage.EmployeeRepository, engine *schedule.Engine, loc *time.Location) error {
	port, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerRequestIDInterceptor()),
	)
	schedgrpc.Register(srv, services, employees, engine, loc)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return nil
}
