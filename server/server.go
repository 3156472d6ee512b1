// Package server exposes the pipeline over HTTP: a WebSocket chat with one
// session per connection and a multipart upload endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phuslu/log"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/pkg/loader"
	"github.com/xhad/lucy/pkg/logging"
	"github.com/xhad/lucy/pkg/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

// Message types exchanged over /ws.
const (
	TypeAsk      = "ask"
	TypeReset    = "reset"
	TypeStatus   = "status"
	TypeResponse = "response"
	TypeError    = "error"
)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Model   string      `json:"model,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Source is one retrieved chunk as reported to clients.
type Source struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source"`
	Page    any     `json:"page,omitempty"`
	Score   float64 `json:"score"`
}

type AnswerData struct {
	Model        string   `json:"model"`
	Attempts     int      `json:"attempts"`
	PromptTokens int      `json:"prompt_tokens"`
	Truncated    int      `json:"truncated"`
	Sources      []Source `json:"sources"`
}

// Assistant is the part of the pipeline the server drives.
type Assistant interface {
	Ingest(ctx context.Context, docs ...models.Document) (*pipeline.IngestResult, error)
	Answer(ctx context.Context, req pipeline.AnswerRequest, session *pipeline.Session) (*pipeline.AnswerResult, error)
}

type Config struct {
	Addr           string
	RawDir         string // uploads are copied here before loading
	MaxUploadBytes int64
	Models         []string
}

type WSServer struct {
	config    Config
	assistant Assistant
	loader    *loader.Loader
	logger    *log.Logger
}

func NewWSServer(config Config, assistant Assistant, l *loader.Loader, logger *log.Logger) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = 50 << 20
	}
	if l == nil {
		l = loader.New()
	}
	return &WSServer{
		config:    config,
		assistant: assistant,
		loader:    l,
		logger:    logging.OrDiscard(logger),
	}
}

func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/models", s.handleModels)

	// Add a simple health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	session := pipeline.NewSession()
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("error reading message")
			}
			return
		}
		// Messages are handled in order; gorilla connections allow one writer.
		s.handleMessage(r.Context(), conn, session, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, conn *websocket.Conn, session *pipeline.Session, msg Message) {
	switch msg.Type {
	case TypeReset:
		session.Reset()
		s.sendMessage(conn, Message{Type: TypeStatus, Content: "Session cleared"})
		return
	case TypeAsk, "":
	default:
		s.sendMessage(conn, Message{Type: TypeError, Content: fmt.Sprintf("Unknown message type %q", msg.Type)})
		return
	}

	query := strings.TrimSpace(msg.Content)

	// A URL in the message replaces the knowledge base with that page.
	if url := urlRegex.FindString(query); url != "" {
		s.sendMessage(conn, Message{Type: TypeStatus, Content: fmt.Sprintf("Processing URL: %s", url)})

		docs, err := s.loader.Fetch(ctx, url)
		if err != nil {
			s.sendMessage(conn, Message{Type: TypeError, Content: fmt.Sprintf("Failed to fetch URL: %v", err)})
			return
		}
		result, err := s.assistant.Ingest(ctx, docs...)
		if err != nil {
			s.sendMessage(conn, Message{Type: TypeError, Content: pipeline.UserMessage(err)})
			return
		}
		s.sendMessage(conn, Message{Type: TypeStatus, Content: fmt.Sprintf("Indexed %d chunks from %s", result.Chunks, url), Data: result})

		// Only continue with chat if query contains more than just the URL
		if query = strings.TrimSpace(strings.Replace(query, url, "", 1)); query == "" {
			return
		}
	}

	answer, err := s.assistant.Answer(ctx, pipeline.AnswerRequest{Question: query, Model: msg.Model}, session)
	if err != nil {
		s.logger.Warn().Err(err).Msg("answer failed")
		s.sendMessage(conn, Message{Type: TypeError, Content: pipeline.UserMessage(err)})
		return
	}

	s.sendMessage(conn, Message{Type: TypeResponse, Content: answer.Answer, Model: answer.Model, Data: answerData(answer)})
}

func answerData(answer *pipeline.AnswerResult) AnswerData {
	data := AnswerData{
		Model:        answer.Model,
		Attempts:     answer.Attempts,
		PromptTokens: answer.PromptTokens,
		Sources:      make([]Source, 0, len(answer.Retrieved)),
	}
	if answer.Prompt != nil {
		data.Truncated = answer.Prompt.Truncated
	}
	for _, c := range answer.Retrieved {
		data.Sources = append(data.Sources, Source{
			ChunkID: c.Chunk.ID,
			Source:  fmt.Sprint(c.Chunk.Metadata["source"]),
			Page:    c.Chunk.Metadata["page"],
			Score:   c.Score,
		})
	}
	return data
}

func (s *WSServer) sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn().Err(err).Str("type", msg.Type).Msg("error sending message")
	}
}

func (s *WSServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	if s.config.RawDir != "" {
		if _, err := loader.Persist(s.config.RawDir, header.Filename, data); err != nil {
			s.logger.Error().Err(err).Str("file", header.Filename).Msg("failed to keep upload")
			writeError(w, http.StatusInternalServerError, "failed to store upload")
			return
		}
	}

	docs, err := s.loader.FromBytes(header.Filename, data)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, loader.ErrNoText) && !errors.Is(err, loader.ErrUnsupported) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	result, err := s.assistant.Ingest(r.Context(), docs...)
	if err != nil {
		s.logger.Error().Err(err).Str("file", header.Filename).Msg("ingest failed")
		writeError(w, http.StatusInternalServerError, pipeline.UserMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":        result.DocumentID,
		"filename":           result.Source,
		"pages":              result.Documents,
		"chunks":             result.Chunks,
		"embedded":           result.Embedded,
		"embedding_failures": result.EmbeddingFailures,
	})
}

func (s *WSServer) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.config.Models})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
