package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"profile-ml/service/internal/apperr"
	"profile-ml/service/internal/recognition"
	"profile-ml/service/internal/scoring"
	"profile-ml/service/internal/store"
	"profile-ml/service/internal/util"
)

// Config defines server dependencies.
type Config struct {
	Version        string
	AllowedOrigins []string
	ArchetypesPath string
	WeightsPath    string
	TaxonomyPath   string
	Recognition    recognition.Config
	// Detector defaults to the fixture detector when nil.
	Detector     recognition.Detector
	DBPath       string
	DisableAudit bool
	SilentDB     bool
}

// Server wires HTTP handlers with scoring, recognition and the audit store.
type Server struct {
	synth          *scoring.Synthesizer
	gateway        *recognition.Gateway
	db             *store.Database
	allowedOrigins []string
	version        string
	notifier       *EventNotifier
}

// NewServer builds the catalogs once and constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	catalog, err := scoring.LoadCatalog(cfg.ArchetypesPath)
	if err != nil {
		return nil, fmt.Errorf("archetype catalog: %w", err)
	}
	weights, err := scoring.LoadWeights(cfg.WeightsPath)
	if err != nil {
		return nil, fmt.Errorf("decision weights: %w", err)
	}
	taxonomy, err := recognition.LoadTaxonomy(cfg.TaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: %w", err)
	}

	detector := cfg.Detector
	if detector == nil {
		detector = recognition.NewFixtureDetector()
	}

	var db *store.Database
	if cfg.DisableAudit {
		logrus.Info("audit store disabled via configuration")
	} else {
		if strings.TrimSpace(cfg.DBPath) == "" {
			return nil, errors.New("db path required")
		}
		db, err = store.Open(cfg.DBPath, cfg.SilentDB)
		if err != nil {
			return nil, err
		}
	}

	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}

	logrus.WithFields(logrus.Fields{
		"catalog_version":  catalog.Version(),
		"weights_version":  weights.Version(),
		"taxonomy_version": taxonomy.Version(),
		"detector":         detector.Name(),
		"threshold":        cfg.Recognition.Threshold,
		"audit":            db != nil,
	}).Info("profile services ready")

	return &Server{
		synth:          scoring.NewSynthesizer(scoring.NewScorer(weights), catalog),
		gateway:        recognition.NewGateway(taxonomy, detector, cfg.Recognition),
		db:             db,
		allowedOrigins: cfg.AllowedOrigins,
		version:        version,
		notifier:       NewEventNotifier(),
	}, nil
}

// Close releases the audit store.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Router configures gin routes. Every route is served at the root and under /api/v1.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.New()
	r.Use(requestID(), recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(accessLog())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader}
	corsCfg.ExposeHeaders = []string{requestIDHeader}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	s.register(r)
	s.register(r.Group("/api/v1"))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return r, nil
}

func (s *Server) register(routes gin.IRoutes) {
	routes.GET("/health", s.handleHealth)
	routes.POST("/character/generate", s.handleGenerate)
	routes.GET("/archetypes", s.handleArchetypes)
	routes.POST("/photo/recognize", s.handleRecognize)
	routes.POST("/photo/recognize/bulk", s.handleRecognizeBulk)
	routes.POST("/photo/validate", s.handleValidate)
	routes.GET("/taxonomy", s.handleTaxonomy)
	routes.GET("/stats", s.handleStats)
	routes.GET("/events/stream", s.handleEventStream)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "ml", Version: s.version})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, errDecisionsRequired)
		return
	}
	decisions, err := decodeDecisions(req.Decisions)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	timer := util.StartTimer()
	profile, err := s.synth.Synthesize(decisions)
	if err != nil {
		s.renderAppError(c, err, "generation failed")
		return
	}

	requestID := c.GetString(requestIDKey)
	if s.db != nil {
		event := &store.GenerationEvent{
			RequestID:  requestID,
			Archetype:  profile.Archetype,
			Dominance:  profile.DominanceLevel,
			Submission: profile.SubmissionLevel,
			Decisions:  len(decisions),
			Warnings:   len(profile.Warnings),
			DurationMs: timer.ElapsedMs(),
		}
		if err := s.db.SaveGeneration(event); err != nil {
			logrus.WithError(err).WithField("request_id", requestID).Warn("record generation event")
		}
	}
	s.notifier.Broadcast(Event{Type: EventGeneration, RequestID: requestID, Archetype: profile.Archetype})

	c.JSON(http.StatusOK, success(profile))
}

func (s *Server) handleArchetypes(c *gin.Context) {
	catalog := s.synth.Catalog()
	c.JSON(http.StatusOK, success(CatalogResponse{
		Version:    catalog.Version(),
		Default:    catalog.DefaultKey(),
		Archetypes: catalog.Archetypes(),
	}))
}

func (s *Server) handleStats(c *gin.Context) {
	if s.db == nil {
		s.renderError(c, http.StatusServiceUnavailable, errors.New("audit store disabled"))
		return
	}
	var since time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("since must be RFC3339: %w", err))
			return
		}
		since = parsed
	}
	stats, err := s.db.Stats(since)
	if err != nil {
		logrus.WithError(err).Error("load audit stats")
		s.renderError(c, http.StatusInternalServerError, errors.New("stats unavailable"))
		return
	}
	c.JSON(http.StatusOK, success(stats))
}

func (s *Server) handleEventStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("event websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("event websocket closed")
			} else {
				logrus.WithError(err).Warn("event websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// renderAppError maps an apperr kind to its status. Internal causes stay in the logs.
func (s *Server) renderAppError(c *gin.Context, err error, internalMessage string) {
	switch apperr.KindOf(err) {
	case apperr.KindInput:
		s.renderError(c, http.StatusBadRequest, errors.New(apperr.Message(err)))
	case apperr.KindNotFound:
		s.renderError(c, http.StatusNotFound, errors.New(apperr.Message(err)))
	default:
		logrus.WithError(err).WithField("request_id", c.GetString(requestIDKey)).Error(internalMessage)
		s.renderError(c, http.StatusInternalServerError, errors.New(internalMessage))
	}
}
