package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/shiplog/vesseltrack/config"
	"github.com/shiplog/vesseltrack/internal/broker/messages"
	"github.com/shiplog/vesseltrack/internal/cache/rediscache"
	"github.com/shiplog/vesseltrack/internal/dateparse"
	"github.com/shiplog/vesseltrack/internal/ingest"
	"github.com/shiplog/vesseltrack/internal/models"
	"github.com/shiplog/vesseltrack/internal/services/chatbot"
	"github.com/shiplog/vesseltrack/internal/services/checker"
)

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	store    storageBundle
	checker  *checker.Checker
	progress *rediscache.ProgressFeed
	ingest   *ingest.Service
	chat     *chatbot.Service
	cfg      *config.Config
}

type createShipmentRequest struct {
	Reference           string  `json:"reference" validate:"required"`
	VesselName          string  `json:"vesselName" validate:"required"`
	VoyageCode          *string `json:"voyageCode"`
	TerminalCode        *string `json:"terminalCode"`
	PlannedDeliveryDate *string `json:"plannedDeliveryDate"`
}

type triggerRequest struct {
	Limit        int     `json:"limit"`
	DelaySeconds *int    `json:"delaySeconds"`
	Force        bool    `json:"force"`
	Initiator    *string `json:"initiator"`
}

type ingestRequest struct {
	Vessels []models.ScrapedVessel `json:"vessels" validate:"required,min=1,dive"`
}

type chatAskRequest struct {
	ConversationID string  `json:"conversation_id" validate:"required"`
	VesselName     string  `json:"vessel_name" validate:"required"`
	VoyageCode     *string `json:"voyage_code"`
	Question       string  `json:"question" validate:"required"`
}

// chatKeyFromQuery достаёт ключ переписки из query-параметров GET-ручек.
func chatKeyFromQuery(r *http.Request) (conversationID, vesselName string, voyageCode *string, ok bool) {
	conversationID = strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	vesselName = strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("vessel_name")))
	if v := strings.TrimSpace(r.URL.Query().Get("voyage_code")); v != "" {
		voyageCode = &v
	}
	return conversationID, vesselName, voyageCode, conversationID != "" && vesselName != ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
		}
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	validate := validator.New()

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		if opts.checker == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "checker not wired"})
			return
		}
		writeJSON(w, http.StatusOK, opts.checker.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "config not wired"})
			return
		}
		// Avoid dumping secrets; show only operational worker settings.
		vt := opts.cfg.VesselTrack
		writeJSON(w, http.StatusOK, map[string]any{
			"tickSeconds":        vt.CheckerTickSeconds,
			"batchLimit":         vt.CheckerBatchLimit,
			"delaySeconds":       vt.CheckerDelaySeconds,
			"rateLimitPerMinute": vt.CheckerRateLimitPerMinute,
			"checkSchedules":     vt.CheckSchedules,
			"ingestHourUTC":      vt.IngestHourUTC,
			"chatRateLimitHours": vt.ChatRateLimitHours,
			"terminalLookupMode": vt.TerminalLookupMode,
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if opts.checker == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "checker not wired"})
			return
		}
		// Тело опционально: пустой POST — прогон с дефолтами.
		var req triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		runOpts := checker.RunOptions{
			Limit:     req.Limit,
			Force:     req.Force,
			Initiator: req.Initiator,
		}
		if req.DelaySeconds != nil {
			runOpts.Delay = time.Duration(*req.DelaySeconds) * time.Second
			runOpts.DelaySet = true
		}
		id := opts.checker.Trigger(runOpts)
		writeJSON(w, http.StatusAccepted, map[string]string{"correlationId": id})
	})

	r.Get("/progress/{runID}", func(w http.ResponseWriter, r *http.Request) {
		if opts.progress == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "progress feed not wired"})
			return
		}
		entries, err := opts.progress.Poll(r.Context(), chi.URLParam(r, "runID"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Delete("/progress/{runID}", func(w http.ResponseWriter, r *http.Request) {
		if opts.progress == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "progress feed not wired"})
			return
		}
		if err := opts.progress.Clear(r.Context(), chi.URLParam(r, "runID")); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
	})

	r.Post("/ingest/{terminal}", func(w http.ResponseWriter, r *http.Request) {
		if opts.ingest == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ingest not wired"})
			return
		}
		terminalCode := strings.ToUpper(chi.URLParam(r, "terminal"))
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		stored, err := opts.ingest.Ingest(r.Context(), terminalCode, req.Vessels)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"scraped": len(req.Vessels), "stored": stored})
	})

	r.Post("/shipments", func(w http.ResponseWriter, r *http.Request) {
		if opts.store == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not wired"})
			return
		}
		var req createShipmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		in := models.ShipmentCreateInput{
			Reference:    strings.TrimSpace(req.Reference),
			VesselName:   strings.ToUpper(strings.TrimSpace(req.VesselName)),
			VoyageCode:   req.VoyageCode,
			TerminalCode: req.TerminalCode,
		}
		if req.PlannedDeliveryDate != nil {
			planned, ok := dateparse.Parse(*req.PlannedDeliveryDate)
			if !ok {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unparseable plannedDeliveryDate"})
				return
			}
			in.PlannedDeliveryDate = &planned
		}
		sh, err := opts.store.CreateShipment(r.Context(), in)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, sh)
	})

	r.Get("/shipments/{id}", func(w http.ResponseWriter, r *http.Request) {
		if opts.store == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not wired"})
			return
		}
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad shipment id"})
			return
		}
		sh, err := opts.store.GetShipmentByID(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if sh == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "shipment not found"})
			return
		}
		writeJSON(w, http.StatusOK, sh)
	})

	r.Get("/shipments/{id}/checks", func(w http.ResponseWriter, r *http.Request) {
		if opts.store == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not wired"})
			return
		}
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad shipment id"})
			return
		}
		logs, err := opts.store.ListCheckLogs(r.Context(), id, 50, 0)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, logs)
	})

	// Ask-сторона чат-фолбэка: внешний мессенджерный воркфлоу спрашивает,
	// пора ли задавать вопрос, регистрирует заданный вопрос и ведёт счётчик
	// фолоу-апов.
	r.Get("/chat/should-ask", func(w http.ResponseWriter, r *http.Request) {
		if opts.chat == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chatbot not wired"})
			return
		}
		conv, vessel, voyage, ok := chatKeyFromQuery(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id and vessel_name are required"})
			return
		}
		d, err := opts.chat.ShouldAskNew(r.Context(), conv, vessel, voyage)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, d)
	})

	r.Post("/chat/ask", func(w http.ResponseWriter, r *http.Request) {
		if opts.chat == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chatbot not wired"})
			return
		}
		var req chatAskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		vessel := strings.ToUpper(strings.TrimSpace(req.VesselName))
		if err := opts.chat.StartRequest(r.Context(), req.ConversationID, vessel, req.VoyageCode, req.Question); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"asked": true})
	})

	r.Post("/chat/attempts", func(w http.ResponseWriter, r *http.Request) {
		if opts.chat == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chatbot not wired"})
			return
		}
		conv, vessel, voyage, ok := chatKeyFromQuery(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id and vessel_name are required"})
			return
		}
		n, found, err := opts.chat.IncrementAttempts(r.Context(), conv, vessel, voyage)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no chat request for this key"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int32{"attempts": n})
	})

	r.Get("/chat/attempts", func(w http.ResponseWriter, r *http.Request) {
		if opts.chat == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chatbot not wired"})
			return
		}
		conv, vessel, voyage, ok := chatKeyFromQuery(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id and vessel_name are required"})
			return
		}
		n, found, err := opts.chat.GetAttempts(r.Context(), conv, vessel, voyage)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"attempts": n, "found": found})
	})

	// Зеркало kafka-топика chat.replies для воркфлоу без брокера.
	r.Post("/chat/reply", func(w http.ResponseWriter, r *http.Request) {
		if opts.chat == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chatbot not wired"})
			return
		}
		var reply messages.ChatReply
		if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := opts.chat.ReceiveResult(r.Context(), reply); err != nil {
			if errors.Is(err, chatbot.ErrNoActiveRequest) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
	})

	if opts.swaggerPath != "" {
		// Serve swagger with no-cache + cachebuster.
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
