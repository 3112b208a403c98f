package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"image-compressor-go/internal/archive"
	"image-compressor-go/internal/codec"
	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/statistics"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// multipartMemory is how much of an upload is kept in memory before the
// multipart reader spills to temporary files.
const multipartMemory = 32 << 20

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	codec      codec.Codec
	validate   *validator.Validate
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CompressRequest is the validated form of an upload.
type CompressRequest struct {
	Quality int                     `validate:"min=0,max=100"`
	Files   []*multipart.FileHeader `validate:"dive,required"`
}

// CompressResponse is returned by the JSON compress endpoint.
type CompressResponse struct {
	BatchID        string              `json:"batch_id"`
	Quality        int                 `json:"quality"`
	Results        []compressor.Result `json:"results"`
	Report         statistics.Report   `json:"report"`
	Summary        string              `json:"summary"`
	ArchiveName    string              `json:"archive_name"`
	ArchiveEntries int                 `json:"archive_entries"`
	Archive        []byte              `json:"archive"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ItemProgress is the payload of an item_processed message.
type ItemProgress struct {
	BatchID        string   `json:"batch_id"`
	Index          int      `json:"index"`
	Total          int      `json:"total"`
	Name           string   `json:"name"`
	Success        bool     `json:"success"`
	Reason         string   `json:"reason,omitempty"`
	OriginalSize   int64    `json:"original_size"`
	CompressedSize int64    `json:"compressed_size,omitempty"`
	Ratio          *float64 `json:"ratio,omitempty"`
	Replaced       bool     `json:"replaced,omitempty"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, c codec.Codec) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		codec:     c,
		validate:  validator.New(),
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/compress/archive", s.handleCompressArchive).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Main page
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.wsMutex.Lock()
	for conn := range s.wsClients {
		conn.Close()
		delete(s.wsClients, conn)
	}
	s.wsMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "web/templates/index.html")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"default_quality":      s.cfg.Compression.DefaultQuality,
			"min_quality":          compressor.MinQuality,
			"max_quality":          compressor.MaxQuality,
			"workers":              s.cfg.Compression.Workers,
			"archive_name":         s.cfg.Compression.ArchiveName,
			"max_upload_bytes":     s.cfg.MaxUploadBytes(),
			"supported_extensions": s.cfg.Compression.SupportedExtensions,
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	batch, status, err := s.compressUpload(w, r)
	if err != nil {
		s.writeError(w, err.Error(), status)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Compressed %d of %d images", batch.Report.ItemsSucceeded, batch.Report.ItemsTotal),
		Data: CompressResponse{
			BatchID:        batch.ID,
			Quality:        batch.Quality,
			Results:        batch.Results,
			Report:         batch.Report,
			Summary:        batch.Report.GetSummary(),
			ArchiveName:    s.cfg.Compression.ArchiveName,
			ArchiveEntries: batch.ArchiveEntries,
			Archive:        batch.Archive,
		},
	})
}

func (s *Server) handleCompressArchive(w http.ResponseWriter, r *http.Request) {
	batch, status, err := s.compressUpload(w, r)
	if err != nil {
		s.writeError(w, err.Error(), status)
		return
	}

	report, err := json.Marshal(batch.Report)
	if err != nil {
		s.writeError(w, "Failed to encode report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", archive.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.cfg.Compression.ArchiveName))
	w.Header().Set("Content-Length", strconv.Itoa(len(batch.Archive)))
	w.Header().Set("X-Batch-ID", batch.ID)
	w.Header().Set("X-Compression-Report", string(report))
	if _, err := w.Write(batch.Archive); err != nil {
		s.log.WithError(err).WithField("batch_id", batch.ID).Error("Failed to write archive response")
	}
}

// compressUpload parses the multipart upload and runs the batch. On failure
// it returns the HTTP status to report.
func (s *Server) compressUpload(w http.ResponseWriter, r *http.Request) (*compressor.Batch, int, error) {
	log := logger.WithOperation(s.log, "upload")
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		}
		return nil, http.StatusBadRequest, errors.New("invalid multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	req := CompressRequest{
		Quality: s.cfg.Compression.DefaultQuality,
		Files:   r.MultipartForm.File["files"],
	}
	if q := r.FormValue("quality"); q != "" {
		quality, err := strconv.Atoi(q)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("quality must be an integer, got %q", q)
		}
		req.Quality = quality
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err)
	}

	items := make([]compressor.Item, 0, len(req.Files))
	for _, fh := range req.Files {
		if !s.isAcceptedName(fh.Filename) {
			return nil, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported file type: %s", fh.Filename)
		}
		data, err := readPart(fh)
		if err != nil {
			log.WithError(err).WithField("file", fh.Filename).Error("Failed to read uploaded file")
			return nil, http.StatusBadRequest, fmt.Errorf("failed to read %s", fh.Filename)
		}
		items = append(items, compressor.Item{Name: fh.Filename, Data: data})
	}

	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"items":   len(items),
		"quality": req.Quality,
	})

	c := compressor.NewBatchCompressor(s.codec, s.log,
		compressor.WithWorkers(s.cfg.Compression.Workers),
		compressor.WithProgress(s.broadcastProgress),
	)
	batch, err := c.CompressBatch(items, req.Quality)
	if err != nil {
		s.broadcastWSMessage("batch_error", map[string]interface{}{
			"error": err.Error(),
		})
		var vErr *compressor.ValidationError
		if errors.As(err, &vErr) {
			return nil, http.StatusBadRequest, err
		}
		log.WithError(err).Error("Batch compression failed")
		return nil, http.StatusInternalServerError, err
	}

	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"batch_id": batch.ID,
		"report":   batch.Report,
		"summary":  batch.Report.GetSummary(),
	})
	return batch, http.StatusOK, nil
}

func (s *Server) isAcceptedName(name string) bool {
	if len(s.cfg.Compression.SupportedExtensions) == 0 {
		return true
	}
	return s.cfg.IsSupportedExtension(filepath.Ext(name))
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) broadcastProgress(e compressor.ItemEvent) {
	s.broadcastWSMessage("item_processed", ItemProgress{
		BatchID:        e.BatchID,
		Index:          e.Index,
		Total:          e.Total,
		Name:           e.Result.Name,
		Success:        e.Result.Success,
		Reason:         e.Result.Reason,
		OriginalSize:   e.Result.OriginalSize,
		CompressedSize: e.Result.CompressedSize,
		Ratio:          e.Result.Ratio,
		Replaced:       e.Replaced,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// broadcastWSMessage holds the client lock while writing; a websocket
// connection supports only one concurrent writer.
func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
