package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"sheetchat-backend/internal/dto"
	"sheetchat-backend/internal/model"
	"sheetchat-backend/internal/service"
)

type QueryController struct {
	queryService   service.QueryService
	historyService service.HistoryService
}

func NewQueryController(queryService service.QueryService, historyService service.HistoryService) *QueryController {
	return &QueryController{
		queryService:   queryService,
		historyService: historyService,
	}
}

func RegisterQueryRoutes(router *gin.Engine, controller *QueryController) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/query", controller.HandleQuery)
		v1.GET("/datasets/active", controller.HandleActiveDataset)
		v1.GET("/history", controller.HandleHistory)
	}
}

// HandleQuery godoc
// @Summary      Ask a natural-language question about the active dataset
// @Description  Runs the query-understanding pipeline: normalization, column resolution, routing, guardrails and exact aggregation. Always returns the uniform result shape whether the outcome is an answer, a clarification question or an explicit guard failure.
// @Tags         query
// @Accept       json
// @Produce      json
// @Param        request body dto.QueryRequest true "User question and optional clarification confirmation"
// @Success      200 {object} dto.QueryResult "Query processed"
// @Failure      400 {object} model.Response "Invalid request body"
// @Failure      500 {object} model.Response "Internal server error during processing"
// @Router       /api/v1/query [post]
func (c *QueryController) HandleQuery(ctx *gin.Context) {
	var req dto.QueryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("Invalid query request body")
		ctx.JSON(http.StatusBadRequest, model.NewResponse("Invalid request body: "+err.Error(), nil))
		return
	}

	result, err := c.queryService.Run(ctx.Request.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("query", req.Query).Msg("Internal error processing query")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Internal server error", nil))
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// HandleActiveDataset godoc
// @Summary      Describe the active dataset
// @Description  Returns the schema snapshot of the most recently uploaded dataset.
// @Tags         datasets
// @Produce      json
// @Success      200 {object} model.Response "Active dataset schema"
// @Failure      404 {object} model.Response "No dataset uploaded yet"
// @Failure      500 {object} model.Response "Internal server error"
// @Router       /api/v1/datasets/active [get]
func (c *QueryController) HandleActiveDataset(ctx *gin.Context) {
	schema, err := c.queryService.ActiveSchema(ctx.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read active schema")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Internal server error", nil))
		return
	}
	if schema == nil {
		ctx.JSON(http.StatusNotFound, model.NewResponse("No dataset uploaded yet", nil))
		return
	}
	ctx.JSON(http.StatusOK, model.NewResponse("Active dataset", schema))
}

// HandleHistory godoc
// @Summary      List recent chat history
// @Tags         query
// @Produce      json
// @Param        limit query int false "Maximum records to return" default(50)
// @Success      200 {object} model.Response "Recent questions and answers"
// @Failure      500 {object} model.Response "Internal server error"
// @Router       /api/v1/history [get]
func (c *QueryController) HandleHistory(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	records, err := c.historyService.Recent(ctx.Request.Context(), limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Internal server error", nil))
		return
	}
	ctx.JSON(http.StatusOK, model.NewResponse("Chat history", records))
}
