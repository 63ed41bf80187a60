package handlers

import (
	"net/http"
	"package-billing-service/internal/api/dto"
	"package-billing-service/internal/services"
)

// FeeRuleHandler exposes the company's fee rule configuration.
type FeeRuleHandler struct {
	Rules *services.FeeRuleService
}

func (h *FeeRuleHandler) List(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	rules, err := h.Rules.List(r.Context(), c.CompanyID)
	if err != nil {
		writeServiceError(w, r, "list fee rules", err)
		return
	}

	res := dto.ListFeeRulesResponse{FeeRules: make([]dto.FeeRuleResponse, 0, len(rules))}
	for _, rule := range rules {
		res.FeeRules = append(res.FeeRules, dto.NewFeeRuleResponse(rule))
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *FeeRuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.FeeRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule, err := h.Rules.Create(r.Context(), c, feeRuleInput(req))
	if err != nil {
		writeServiceError(w, r, "create fee rule", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, dto.NewFeeRuleResponse(rule))
}

func (h *FeeRuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.FeeRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule, err := h.Rules.Update(r.Context(), c, r.PathValue("id"), feeRuleInput(req))
	if err != nil {
		writeServiceError(w, r, "update fee rule", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.NewFeeRuleResponse(rule))
}

func (h *FeeRuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	if err := h.Rules.Delete(r.Context(), c, r.PathValue("id")); err != nil {
		writeServiceError(w, r, "delete fee rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func feeRuleInput(req dto.FeeRuleRequest) services.FeeRuleInput {
	return services.FeeRuleInput{
		Name:          req.Name,
		Code:          req.Code,
		FeeType:       req.FeeType,
		Method:        req.CalculationMethod,
		Amount:        req.Amount,
		Currency:      req.Currency,
		AppliesTo:     req.AppliesTo,
		TagConditions: req.TagConditions,
		Metadata:      req.Metadata,
		Limits:        req.Limits,
		Description:   req.Description,
		Sequence:      req.Sequence,
		IsActive:      req.IsActive,
	}
}
