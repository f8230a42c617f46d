package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/logger"
	"github.com/ammar1510/docconnect/internal/messaging"
)

var log = logger.New("api")

func init() {
	useJSONNames()
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondPage(c *gin.Context, data interface{}, page messaging.Pagination) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "pagination": page})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// respondError maps the error taxonomy onto a status code
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	respondMessage(c, status, apperr.PublicMessage(err))
}

// respondBindError turns request binding failures into one readable sentence
func respondBindError(c *gin.Context, err error) {
	respondMessage(c, http.StatusBadRequest, bindMessage(err))
}

func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "request body is malformed"
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, sizeUnit(fe))
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, sizeUnit(fe))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be %s or more", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

func sizeUnit(fe validator.FieldError) string {
	switch fe.Kind().String() {
	case "string":
		return fe.Param() + " characters"
	case "slice", "array":
		return fe.Param() + " items"
	}
	return fe.Param()
}

// useJSONNames makes validation errors report the json field name
func useJSONNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// currentUser reads the id placed in the context by AuthMiddleware
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get("userID")
	if !exists {
		respondMessage(c, http.StatusUnauthorized, "not authenticated")
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		respondMessage(c, http.StatusUnauthorized, "not authenticated")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("%s must be a valid id", name))
		return uuid.Nil, false
	}
	return id, true
}

func pageFromQuery(c *gin.Context) messaging.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(messaging.DefaultLimit)))
	return messaging.NewPage(page, limit)
}
