package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/messhall-api/internal/models"
	"github.com/noah-isme/messhall-api/internal/service"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
	"github.com/noah-isme/messhall-api/pkg/response"
)

// PlanHandler exposes meal plan endpoints.
type PlanHandler struct {
	plans *service.PlanService
}

// NewPlanHandler constructs PlanHandler.
func NewPlanHandler(plans *service.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// List godoc
// @Summary List meal plans
// @Tags Plans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /plans [get]
func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plans, nil)
}

// Get godoc
// @Summary Get one meal plan
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /plans/{id} [get]
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.plans.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// PlanRequest is the create/update payload for a plan.
type PlanRequest struct {
	Name       string   `json:"name" binding:"required"`
	MonthlyFee int      `json:"monthly_fee"`
	Meals      []string `json:"meals" binding:"required,min=1"`
}

func (r PlanRequest) toModel() *models.Plan {
	set := models.MealSet{}
	for _, name := range r.Meals {
		if meal, ok := models.ParseMeal(name); ok {
			set[meal] = struct{}{}
		}
	}
	return &models.Plan{Name: r.Name, MonthlyFee: r.MonthlyFee, Meals: set}
}

// Create godoc
// @Summary Create a meal plan
// @Tags Plans
// @Accept json
// @Produce json
// @Param payload body PlanRequest true "Plan payload"
// @Success 201 {object} response.Envelope
// @Router /plans [post]
func (h *PlanHandler) Create(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	plan := req.toModel()
	if err := h.plans.Create(c.Request.Context(), plan); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, plan)
}

// Update godoc
// @Summary Update a meal plan
// @Tags Plans
// @Accept json
// @Produce json
// @Param id path string true "Plan ID"
// @Param payload body PlanRequest true "Plan payload"
// @Success 200 {object} response.Envelope
// @Router /plans/{id} [put]
func (h *PlanHandler) Update(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	plan := req.toModel()
	plan.ID = c.Param("id")
	if err := h.plans.Update(c.Request.Context(), plan); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Delete godoc
// @Summary Delete a meal plan
// @Tags Plans
// @Param id path string true "Plan ID"
// @Success 204
// @Router /plans/{id} [delete]
func (h *PlanHandler) Delete(c *gin.Context) {
	if err := h.plans.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
