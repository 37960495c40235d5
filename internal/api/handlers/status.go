package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// HealthResponse is the body of GET /.
type HealthResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ModelLoaded bool   `json:"modelo_carregado"`
}

// Health is the liveness probe. It answers 200 even when the model failed to load.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      "online",
		Message:     "Backend do " + ServiceName + " está online.",
		ModelLoaded: h.model.Ready(),
	})
}

// UploadInfo describes the upload limits.
type UploadInfo struct {
	MaxBytes int64  `json:"max_bytes"`
	Max      string `json:"max"`
}

// SystemInfo carries host memory figures.
type SystemInfo struct {
	MemoryTotal       uint64  `json:"memory_total_bytes"`
	MemoryAvailable   uint64  `json:"memory_available_bytes"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Service       string        `json:"servico"`
	ModelLoaded   bool          `json:"modelo_carregado"`
	Endpoints     []Endpoint    `json:"endpoints"`
	Version       string        `json:"version"`
	Commit        string        `json:"commit"`
	Model         detector.Info `json:"model"`
	Upload        UploadInfo    `json:"upload"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	System        *SystemInfo   `json:"system,omitempty"`
	Timestamp     string        `json:"timestamp"`
}

// Status reports the service, model and host state.
func (h *Handlers) Status(c echo.Context) error {
	resp := StatusResponse{
		Service:       ServiceName,
		ModelLoaded:   h.model.Ready(),
		Endpoints:     h.endpoints,
		Version:       h.build.Version(),
		Commit:        h.build.Commit(),
		Model:         h.model.Info(),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Timestamp:     time.Now().Format(time.RFC3339),
	}
	if h.assets != nil {
		resp.Upload = UploadInfo{MaxBytes: h.assets.MaxBytes(), Max: h.maxUploadDisplay()}
	}

	vm, err := mem.VirtualMemoryWithContext(c.Request().Context())
	if err != nil {
		h.log.Debug("Memory info unavailable", logger.Error(err))
	} else {
		resp.System = &SystemInfo{
			MemoryTotal:       vm.Total,
			MemoryAvailable:   vm.Available,
			MemoryUsedPercent: vm.UsedPercent,
		}
	}

	return c.JSON(http.StatusOK, resp)
}
