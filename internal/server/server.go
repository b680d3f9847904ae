package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/TobiSchelling/emojidash/internal/aggregate"
	"github.com/TobiSchelling/emojidash/internal/config"
	"github.com/TobiSchelling/emojidash/internal/dataset"
	"github.com/TobiSchelling/emojidash/internal/metrics"
	"github.com/TobiSchelling/emojidash/internal/pipeline"
	"github.com/TobiSchelling/emojidash/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed templates/welcome.md
var welcomeMarkdown string

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const (
	sessionCookie = "emojidash_session"
	// previewRows caps the raw table rendered on the page; the export has
	// every row.
	previewRows = 200
	xlsxMIME    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Server is the HTTP server for the dashboard.
type Server struct {
	cfg     *config.Config
	pipe    *pipeline.Pipeline
	metrics *metrics.Metrics
	log     *zap.Logger
	pages   map[string]*template.Template
	engine  *gin.Engine
}

// New creates a new Server.
func New(cfg *config.Config, pipe *pipeline.Pipeline, m *metrics.Metrics, log *zap.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"percent": func(v float64) string {
			return strconv.FormatFloat(v, 'f', 1, 64) + "%"
		},
		"selected": func(a, b string) bool { return a == b },
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not
	// collide across pages.
	pageNames := []string{"index.html", "welcome.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		cfg:     cfg,
		pipe:    pipe,
		metrics: m,
		log:     log,
		pages:   pages,
		engine:  gin.New(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), s.requestLogger(), s.metrics.Middleware())

	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	r.StaticFS("/static", http.FS(staticSub))

	r.GET("/", s.handleIndex)
	r.POST("/upload", s.handleUpload)
	r.GET("/export.xlsx", s.handleExport)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	api.GET("/options", s.handleOptions)
	api.GET("/dashboard", s.handleDashboard)
	api.GET("/rows", s.handleRows)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// session returns the caller's session id, issuing a new one when the
// cookie is missing or malformed.
func (s *Server) session(c *gin.Context) string {
	if v, err := c.Cookie(sessionCookie); err == nil {
		if id, err := uuid.Parse(v); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id, 0, "/", "", false, true)
	return id
}

// indexView is the data handed to index.html.
type indexView struct {
	Error     string
	Filter    aggregate.Filter
	Options   aggregate.FilterOptions
	Dashboard *aggregate.Dashboard
	Report    string
	ChartData template.JS
	Filled    []string
	Rows      *dataset.RawTable
	RowsTotal int
}

func (s *Server) handleIndex(c *gin.Context) {
	table, err := s.pipe.SessionTable(c.Request.Context(), s.session(c))
	if errors.Is(err, pipeline.ErrNoDataset) {
		s.render(c, http.StatusOK, "welcome.html", map[string]any{
			"Welcome": welcomeMarkdown,
		})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	f, err := s.filter(c)
	if err != nil {
		fallback := aggregate.DefaultFilter()
		fallback.TopN = s.cfg.Dashboard.DefaultTopN
		s.renderIndex(c, http.StatusBadRequest, table, fallback, err.Error())
		return
	}
	s.renderIndex(c, http.StatusOK, table, f, "")
}

func (s *Server) renderIndex(c *gin.Context, status int, table *dataset.Table, f aggregate.Filter, msg string) {
	view := indexView{
		Error:   msg,
		Filter:  f,
		Options: aggregate.Options(table),
		Filled:  table.Filled,
	}

	d, err := s.pipe.Dashboard(table, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	view.Dashboard = d
	view.Report = report.Markdown(d)
	data, err := json.Marshal(d)
	if err != nil {
		s.fail(c, err)
		return
	}
	view.ChartData = template.JS(data) //nolint: gosec

	rows := f.Apply(table).Raw()
	view.RowsTotal = len(rows.Rows)
	if len(rows.Rows) > previewRows {
		rows.Rows = rows.Rows[:previewRows]
	}
	view.Rows = rows

	s.render(c, status, "index.html", view)
}

func (s *Server) handleUpload(c *gin.Context) {
	sessionID := s.session(c)
	limit := s.cfg.MaxUploadBytes()
	tooLargeMsg := fmt.Sprintf("file exceeds the %d MB upload limit", s.cfg.Server.MaxUploadMB)
	if c.Request.ContentLength > limit {
		s.rejectUpload(c, http.StatusRequestEntityTooLarge, tooLargeMsg)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.rejectUpload(c, http.StatusRequestEntityTooLarge, tooLargeMsg)
			return
		}
		s.rejectUpload(c, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		s.rejectUpload(c, http.StatusUnsupportedMediaType, "only .xlsx workbooks are accepted")
		return
	}

	body, err := io.ReadAll(file)
	if err != nil {
		s.rejectUpload(c, http.StatusBadRequest, "failed to read upload")
		return
	}

	result, err := s.pipe.Ingest(c.Request.Context(), pipeline.Upload{
		SessionID: sessionID,
		FileName:  header.Filename,
		Data:      body,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dataset.ErrDataLoad) {
			status = http.StatusUnprocessableEntity
		}
		s.uploadError(c, status, fmt.Sprintf("Error loading %s: %v", header.Filename, err))
		return
	}

	switch c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) {
	case gin.MIMEJSON:
		steps := make([]gin.H, len(result.Steps))
		for i, st := range result.Steps {
			steps[i] = gin.H{"name": st.Name, "summary": st.Summary}
		}
		c.JSON(http.StatusOK, gin.H{
			"file":    header.Filename,
			"rows":    result.Table.Len(),
			"columns": result.Table.Columns,
			"filled":  result.Table.Filled,
			"cached":  result.Cached,
			"steps":   steps,
		})
	default:
		c.Redirect(http.StatusSeeOther, "/")
	}
}

func (s *Server) rejectUpload(c *gin.Context, status int, msg string) {
	s.metrics.IncUpload(pipeline.UploadRejected)
	s.uploadError(c, status, msg)
}

// uploadError reports a failed upload.
func (s *Server) uploadError(c *gin.Context, status int, msg string) {
	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	s.render(c, status, "welcome.html", map[string]any{
		"Welcome": welcomeMarkdown,
		"Error":   msg,
	})
}

func (s *Server) handleOptions(c *gin.Context) {
	table, ok := s.sessionTable(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, aggregate.Options(table))
}

func (s *Server) handleDashboard(c *gin.Context) {
	table, ok := s.sessionTable(c)
	if !ok {
		return
	}
	f, err := s.filter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := s.pipe.Dashboard(table, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleRows(c *gin.Context) {
	table, ok := s.sessionTable(c)
	if !ok {
		return
	}
	f, err := s.filter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw := f.Apply(table).Raw()
	c.JSON(http.StatusOK, gin.H{
		"columns": raw.Columns,
		"rows":    raw.Rows,
		"total":   len(raw.Rows),
	})
}

func (s *Server) handleExport(c *gin.Context) {
	table, ok := s.sessionTable(c)
	if !ok {
		return
	}
	f, err := s.filter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := dataset.WriteXLSX(&buf, f.Apply(table)); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="emojidash-export.xlsx"`)
	c.Data(http.StatusOK, xlsxMIME, buf.Bytes())
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sessionTable loads the caller's table, answering 404 when there is none.
func (s *Server) sessionTable(c *gin.Context) (*dataset.Table, bool) {
	table, err := s.pipe.SessionTable(c.Request.Context(), s.session(c))
	if errors.Is(err, pipeline.ErrNoDataset) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no dataset loaded; upload an .xlsx file first"})
		return nil, false
	}
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return table, true
}

// filter reads festival, sentiment and top_n from the query string.
func (s *Server) filter(c *gin.Context) (aggregate.Filter, error) {
	f := aggregate.Filter{
		Festival:  c.DefaultQuery("festival", aggregate.All),
		Sentiment: c.DefaultQuery("sentiment", aggregate.All),
		TopN:      s.cfg.Dashboard.DefaultTopN,
	}
	if v := c.Query("top_n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("%w: %q", aggregate.ErrInvalidTopN, v)
		}
		f.TopN = n
	}
	return f, f.Validate()
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func (s *Server) render(c *gin.Context, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error("template not found", zap.String("template", name))
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.log.Error("rendering template", zap.String("template", name), zap.Error(err))
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, srv *Server, addr string, log *zap.Logger) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("url", "http://"+addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("shutting down server")
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
