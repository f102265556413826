package app

import (
	"context"
	"fmt"
	"time"

	"crossmod/internal/core/ports"
	"crossmod/internal/data/history"
	"crossmod/internal/shared/util"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Memory     util.MemoryUsage  `json:"memory"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	ws          *Workspace
	coordinator *Coordinator
	historyOn   bool
	history     ports.HistoryStore
}

func NewHealthService(ws *Workspace, coordinator *Coordinator, historyEnabled bool, store ports.HistoryStore) *HealthService {
	return &HealthService{ws: ws, coordinator: coordinator, historyOn: historyEnabled, history: store}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Memory:     util.ReadMemoryUsage(),
		Components: make(map[string]string),
	}

	if s.ws == nil {
		status.Status = "degraded"
		status.Components["workspace"] = "missing"
		return status
	}

	for _, name := range s.ws.Projects() {
		if ctx.Err() != nil {
			status.Status = "degraded"
			status.Components["health"] = "check cancelled"
			return status
		}
		sess, _ := s.ws.Session(name)
		reg := sess.Registry()
		last := sess.LastReport()
		component := fmt.Sprintf("ok (%d modules, %d up to date, %d edges)",
			reg.Len(), reg.UpToDateCount(), sess.Graph().EdgeCount())
		switch last.Status {
		case "":
			component = "not analyzed yet"
		case history.StatusFailed:
			status.Status = "degraded"
			component = fmt.Sprintf("last cycle failed (%s)", last.ID)
		case history.StatusCancelled:
			component += ", last cycle cancelled"
		}
		status.Components["project:"+name] = component
	}

	if s.coordinator != nil {
		status.Components["coordinator"] = fmt.Sprintf("ok (%d queued)", s.coordinator.Pending())
	}

	if s.history != nil {
		status.Components["history"] = "ok"
	} else if s.historyOn {
		status.Status = "degraded"
		status.Components["history"] = "missing but enabled in config"
	}

	return status
}
