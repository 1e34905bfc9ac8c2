package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type quizHandler struct {
	services *app.Services
}

type joinRequest struct {
	Code string `json:"code"`
}

type joinResponse struct {
	QuizID string           `json:"quizId"`
	Title  string           `json:"title"`
	State  domain.QuizState `json:"state"`
}

type reconcileResponse struct {
	Participants int `json:"participants"`
}

func (h *quizHandler) create(c *gin.Context) {
	var in app.NewQuiz
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWithError(c, domain.Invalid("body", err.Error()))
		return
	}
	quiz, err := h.services.Lifecycle.CreateQuiz(c.Request.Context(), principalFrom(c), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quiz)
}

func (h *quizHandler) list(c *gin.Context) {
	quizzes, err := h.services.Lifecycle.ListQuizzes(c.Request.Context(), principalFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if quizzes == nil {
		quizzes = []domain.Quiz{}
	}
	c.JSON(http.StatusOK, quizzes)
}

func (h *quizHandler) get(c *gin.Context) {
	quiz, err := h.services.Lifecycle.OwnedQuiz(c.Request.Context(), principalFrom(c), c.Param("quizId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *quizHandler) transition(target domain.QuizState) gin.HandlerFunc {
	return func(c *gin.Context) {
		quiz, err := h.services.Lifecycle.Transition(c.Request.Context(), principalFrom(c), c.Param("quizId"), target)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, quiz)
	}
}

func (h *quizHandler) listQuestions(c *gin.Context) {
	questions, err := h.services.Questions.ListQuestions(c.Request.Context(), principalFrom(c), c.Param("quizId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if questions == nil {
		questions = []domain.Question{}
	}
	c.JSON(http.StatusOK, questions)
}

func (h *quizHandler) addQuestion(c *gin.Context) {
	var in app.NewQuestion
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWithError(c, domain.Invalid("body", err.Error()))
		return
	}
	question, err := h.services.Questions.AddQuestion(c.Request.Context(), principalFrom(c), c.Param("quizId"), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

func (h *quizHandler) deleteQuestion(c *gin.Context) {
	err := h.services.Questions.DeleteQuestion(c.Request.Context(), principalFrom(c), c.Param("quizId"), c.Param("questionId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *quizHandler) gradeableAnswers(c *gin.Context) {
	answers, err := h.services.Grading.ListGradeableAnswers(c.Request.Context(), principalFrom(c), c.Param("quizId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, answers)
}

func (h *quizHandler) setScore(c *gin.Context) {
	var in app.ScoreInput
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWithError(c, domain.Invalid("body", err.Error()))
		return
	}
	answer, err := h.services.Grading.SetScore(c.Request.Context(), principalFrom(c), c.Param("answerId"), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (h *quizHandler) reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	quiz, err := h.services.Lifecycle.OwnedQuiz(ctx, principalFrom(c), c.Param("quizId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	n, err := h.services.Leaderboard.ReconcileQuiz(ctx, quiz.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, reconcileResponse{Participants: n})
}

func (h *quizHandler) leaderboard(c *gin.Context) {
	board, err := h.services.Leaderboard.Rank(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// join resolves a join code so a client can show the quiz before opening
// the play socket.
func (h *quizHandler) join(c *gin.Context) {
	var in joinRequest
	if err := c.ShouldBindJSON(&in); err != nil || in.Code == "" {
		abortWithError(c, domain.Invalid("code", "required"))
		return
	}
	quiz, err := h.services.Lifecycle.Lookup(c.Request.Context(), in.Code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, joinResponse{QuizID: quiz.ID, Title: quiz.Title, State: quiz.State})
}
