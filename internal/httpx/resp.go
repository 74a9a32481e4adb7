package httpx

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Response is the envelope every endpoint answers with
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ListData is the data of paginated list responses
type ListData struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

func OK(c *gin.Context, data any) {
	OKMsg(c, "success", data)
}

// OKMsg is OK with a message other than "success", e.g. "queued"
func OKMsg(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: message, Data: data})
}

func OKItems(c *gin.Context, items any, total int64, page, pageSize int) {
	OK(c, ListData{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// FailErr renders err and aborts the handler chain. The wrapped Err is
// logged, never sent.
func FailErr(c *gin.Context, err *AppError) {
	if err.Err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "http",
			"code":      err.Code,
			"path":      c.FullPath(),
		}).WithError(err.Err).Error(err.Message)
	}
	if secs := err.RetryAfterSeconds(); secs > 0 {
		c.Header("Retry-After", strconv.Itoa(secs))
	}

	c.AbortWithStatusJSON(err.HTTPStatus, Response{Code: err.Code, Message: err.Message, Data: err.Data})
}
