package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"marstek-monitor/internal/battery"
	"marstek-monitor/internal/coordinator"
	"marstek-monitor/internal/storage"

	"github.com/gin-gonic/gin"
)

type Server struct {
	router  *gin.Engine
	server  *http.Server
	coord   *coordinator.Coordinator
	db      *storage.Database
	port    int
	variant battery.Variant
}

type ServerConfig struct {
	Port        int
	Coordinator *coordinator.Coordinator
	Database    *storage.Database
	Variant     battery.Variant
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		coord:   cfg.Coordinator,
		db:      cfg.Database,
		port:    cfg.Port,
		variant: cfg.Variant,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api/v1")
	{
		api.GET("/status", s.statusHandler)
		api.GET("/values", s.valuesHandler)
		api.GET("/values/:name", s.valueHandler)
		api.GET("/registers", s.registersHandler)
		api.GET("/health/groups", s.groupHealthHandler)
		api.POST("/control/:name", s.controlHandler)

		api.GET("/readings", s.readingsHandler)
		api.GET("/readings/latest", s.latestReadingHandler)
		api.GET("/energy/daily", s.dailyEnergyHandler)
		api.GET("/stats/daily", s.dailyStatsHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Printf("API server listening on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	status := "ok"
	if s.coord.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) statusHandler(c *gin.Context) {
	data := s.coord.Data()
	c.JSON(http.StatusOK, gin.H{
		"variant":  s.variant,
		"online":   data.IsOnline,
		"degraded": s.coord.Degraded(),
		"data":     data,
	})
}

func (s *Server) valuesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.Values())
}

func (s *Server) valueHandler(c *gin.Context) {
	name := c.Param("name")
	v, ok := s.coord.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no value for %q", name)})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) registersHandler(c *gin.Context) {
	regs := s.coord.Registers()
	out := make([]gin.H, 0, len(regs))
	for _, r := range regs {
		out = append(out, gin.H{
			"name":     r.Name,
			"address":  r.Addr,
			"words":    r.Words,
			"kind":     r.Kind.String(),
			"unit":     r.Unit,
			"tier":     r.Tier,
			"writable": r.Writable(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) groupHealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.Health())
}

type controlRequest struct {
	// Pointer so that writing zero (e.g. force_mode stop) binds.
	Value *float64 `json:"value" binding:"required"`
}

func (s *Server) controlHandler(c *gin.Context) {
	name := c.Param("name")

	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.coord.SubmitWrite(name, *req.Value); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, battery.ErrOutOfRange) || errors.Is(err, battery.ErrNotWritable) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": name, "value": req.Value})
}

func (s *Server) readingsHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history disabled"})
		return
	}

	limit := 100
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	if from := c.Query("from"); from != "" {
		to := c.Query("to")
		fromTime, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from time"})
			return
		}
		toTime := time.Now()
		if to != "" {
			if toTime, err = time.Parse(time.RFC3339, to); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to time"})
				return
			}
		}
		readings, err := s.db.GetReadingsByRange(fromTime, toTime)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, readings)
		return
	}

	readings, err := s.db.GetReadingsWithLimit(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (s *Server) latestReadingHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history disabled"})
		return
	}

	reading, err := s.db.GetLatestReading()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no readings yet"})
		return
	}
	c.JSON(http.StatusOK, reading)
}

func (s *Server) dailyEnergyHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history disabled"})
		return
	}

	date := time.Now()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	charged, discharged, err := s.db.GetDailyEnergy(date)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no readings for date"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":           date.Format("2006-01-02"),
		"charged_kwh":    charged,
		"discharged_kwh": discharged,
	})
}

func (s *Server) dailyStatsHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history disabled"})
		return
	}

	date := time.Now()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	stats, err := s.db.GetDailyStats(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
