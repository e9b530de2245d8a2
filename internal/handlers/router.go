package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/eduhub-vn/exam-session-service/internal/config"
	"github.com/eduhub-vn/exam-session-service/internal/models"
	"github.com/eduhub-vn/exam-session-service/internal/repositories"
	"github.com/eduhub-vn/exam-session-service/internal/services"
	"github.com/eduhub-vn/exam-session-service/internal/utils"
	"github.com/eduhub-vn/exam-session-service/internal/validator"
)

type HandlerManager struct {
	examHandler    *ExamHandler
	sessionHandler *SessionHandler
	resultHandler  *ResultHandler
	authMiddleware *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		examHandler:    NewExamHandler(serviceManager.Gate(), serviceManager.Report(), logger),
		sessionHandler: NewSessionHandler(serviceManager.Session(), validator, logger),
		resultHandler:  NewResultHandler(serviceManager.Result(), logger),
		authMiddleware: authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Exam routes
		exams := v1.Group("/exams")
		{
			// Gate pre-check - all authenticated users
			exams.GET("/:id/gate", hm.examHandler.GetGate)

			// Result export - Teachers and Admins only
			exams.GET("/:id/results/export", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin), hm.examHandler.ExportResults)
		}

		// Session routes - Students only
		sessions := v1.Group("/sessions")
		sessions.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent))
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.DELETE("/:id", hm.sessionHandler.AbandonSession)

			// Answer model mutators
			sessions.PUT("/:id/answers/choice", hm.sessionHandler.SetChoiceAnswer)
			sessions.PUT("/:id/answers/text", hm.sessionHandler.SetTextAnswer)
			sessions.PUT("/:id/answers/order", hm.sessionHandler.ReorderTokens)
			sessions.PUT("/:id/answers/match", hm.sessionHandler.ToggleMatchAnswer)

			sessions.PUT("/:id/position", hm.sessionHandler.SetPosition)
			sessions.GET("/:id/progress", hm.sessionHandler.GetProgress)
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitSession)
		}

		// Result routes - owner or staff, enforced in the service
		results := v1.Group("/results")
		{
			results.GET("/:result_id/analysis", hm.resultHandler.GetResultAnalysis)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "exam-session-service",
		})
	})
}
