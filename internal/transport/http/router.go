package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// BlobReader serves blobs kept by the in-memory blob store.
type BlobReader interface {
	Get(key string) ([]byte, string, bool)
}

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Services       *app.Services
	Auth           app.Authenticator
	AllowedOrigins []string
	// Blobs, when set, is served under /blobs for local development.
	Blobs BlobReader
	// MaxUploadBytes bounds multipart bodies.
	MaxUploadBytes int64
}

// NewRouter builds the gin engine with the REST API and websocket endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.Blobs != nil {
		r.GET("/blobs/*key", serveBlob(cfg.Blobs))
	}

	quizzes := &quizHandler{services: cfg.Services}
	profiles := &profileHandler{profiles: cfg.Services.Profiles, maxUpload: cfg.MaxUploadBytes}
	play := NewWSHandler(cfg.Services.Quizzes, cfg.Services.Profiles)
	boards := NewLeaderboardWSHandler(cfg.Services.Leaderboard)

	api := r.Group("/api")
	api.Use(authenticate(cfg.Auth))
	{
		api.GET("/profile", profiles.get)
		api.PUT("/profile", profiles.update)
		api.POST("/quizzes/:quizId/attachments", profiles.uploadAttachment)
		api.GET("/quizzes/:quizId/leaderboard", quizzes.leaderboard)
		api.POST("/join", quizzes.join)

		teacher := api.Group("/")
		teacher.Use(requireRole(domain.RoleTeacher))
		{
			teacher.GET("/quizzes", quizzes.list)
			teacher.POST("/quizzes", quizzes.create)
			teacher.GET("/quizzes/:quizId", quizzes.get)
			teacher.POST("/quizzes/:quizId/start", quizzes.transition(domain.QuizActive))
			teacher.POST("/quizzes/:quizId/finish", quizzes.transition(domain.QuizFinished))
			teacher.GET("/quizzes/:quizId/questions", quizzes.listQuestions)
			teacher.POST("/quizzes/:quizId/questions", quizzes.addQuestion)
			teacher.DELETE("/quizzes/:quizId/questions/:questionId", quizzes.deleteQuestion)
			teacher.GET("/quizzes/:quizId/answers", quizzes.gradeableAnswers)
			teacher.PUT("/answers/:answerId/score", quizzes.setScore)
			teacher.POST("/quizzes/:quizId/reconcile", quizzes.reconcile)
		}
	}

	ws := r.Group("/ws")
	ws.Use(authenticate(cfg.Auth))
	{
		ws.GET("/play", gin.WrapF(play.ServeWS))
		ws.GET("/leaderboard/:quizId", boards.serve)
	}
	return r
}

func serveBlob(blobs BlobReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, contentType, ok := blobs.Get(strings.TrimLeft(c.Param("key"), "/"))
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Data(http.StatusOK, contentType, data)
	}
}
