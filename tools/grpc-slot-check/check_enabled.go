//go:build protogen

package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/j-arredondo/cleansched/libs/grpcx"
	schedulingv1 "github.com/j-arredondo/cleansched/protos/gen/scheduling/v1"
)

func run() int {
	var (
		addr      = flag.String("addr", getenv("GRPC_ADDR", "localhost:9090"), "scheduling-service gRPC address")
		serviceID = flag.Int64("service-id", 0, "service id")
		employees = flag.String("employee-ids", "", "comma-separated employee ids (empty = all eligible)")
		date      = flag.String("date", time.Now().Format("2006-01-02"), "date (YYYY-MM-DD)")
		start     = flag.String("start", "", "start time (HH:MM); empty lists free slots instead")
		stepMins  = flag.Int("step-mins", 0, "slot step for listing (0 = service duration)")
	)
	flag.Parse()

	if *serviceID == 0 {
		fmt.Println("-service-id is required")
		return 1
	}
	ids, err := parseIDs(*employees)
	if err != nil {
		fmt.Println(err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx = grpcx.WithRequestID(ctx, grpcx.NewRequestID())

	conn, err := grpcx.Dial(ctx, *addr, grpcx.DialOptions{})
	if err != nil {
		fmt.Printf("dial %s: %v\n", *addr, err)
		return 1
	}
	defer conn.Close()
	client := schedulingv1.NewSchedulingServiceClient(conn)

	if *start == "" {
		resp, err := client.ListFreeSlots(ctx, &schedulingv1.ListFreeSlotsRequest{
			ServiceId:   *serviceID,
			Date:        *date,
			EmployeeIds: ids,
			StepMins:    int32(*stepMins),
		})
		if err != nil {
			fmt.Printf("ListFreeSlots: %v\n", err)
			return 1
		}
		if len(resp.Slots) == 0 {
			fmt.Printf("no free slots on %s\n", resp.Date)
			return 0
		}
		for _, s := range resp.Slots {
			fmt.Printf("%s .. %s  employees=%v\n", s.StartTime, s.EndTime, s.EmployeeIds)
		}
		return 0
	}

	resp, err := client.CheckSlot(ctx, &schedulingv1.CheckSlotRequest{
		ServiceId:   *serviceID,
		EmployeeIds: ids,
		Date:        *date,
		StartTime:   *start,
	})
	if err != nil {
		fmt.Printf("CheckSlot: %v\n", err)
		return 1
	}
	fmt.Printf("outcome=%s window=%s..%s\n", resp.Outcome, resp.StartTime, resp.EndTime)
	if resp.EmployeeId != 0 {
		fmt.Printf("employee=%d\n", resp.EmployeeId)
	}
	if resp.ConflictingAppointmentId != 0 {
		fmt.Printf("conflicting_appointment=%d\n", resp.ConflictingAppointmentId)
	}
	if resp.Outcome != "available" {
		return 2
	}
	return 0
}

func parseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad employee id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
