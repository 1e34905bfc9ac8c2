package http

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type profileHandler struct {
	profiles  *app.Profiles
	maxUpload int64
}

type attachmentResponse struct {
	URL string `json:"url"`
}

func (h *profileHandler) get(c *gin.Context) {
	profile, err := h.profiles.EnsureProfile(c.Request.Context(), principalFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// update accepts JSON, or a multipart form with an optional fullName field
// and an optional avatar file.
func (h *profileHandler) update(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	var in app.ProfileUpdate
	if c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&in); err != nil {
			abortWithError(c, domain.Invalid("body", err.Error()))
			return
		}
		h.save(c, in)
		return
	}

	in.FullName = c.PostForm("fullName")
	header, err := c.FormFile("avatar")
	switch {
	case err == nil:
		file, err := header.Open()
		if err != nil {
			abortWithError(c, domain.Invalid("avatar", err.Error()))
			return
		}
		defer file.Close()
		in.Avatar = uploadFrom(header, file)
	case !errors.Is(err, http.ErrMissingFile):
		abortWithError(c, domain.Invalid("avatar", err.Error()))
		return
	}

	h.save(c, in)
}

func (h *profileHandler) save(c *gin.Context, in app.ProfileUpdate) {
	profile, err := h.profiles.UpdateProfile(c.Request.Context(), principalFrom(c), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *profileHandler) uploadAttachment(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	header, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, domain.Invalid("file", err.Error()))
		return
	}
	file, err := header.Open()
	if err != nil {
		abortWithError(c, domain.Invalid("file", err.Error()))
		return
	}
	defer file.Close()

	url, err := h.profiles.UploadAttachment(c.Request.Context(), principalFrom(c), c.Param("quizId"), *uploadFrom(header, file))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachmentResponse{URL: url})
}

func uploadFrom(header *multipart.FileHeader, file multipart.File) *app.Upload {
	return &app.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
}
