package handlers

import (
	"net/http"
	"package-billing-service/internal/api/dto"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/services"
	"strings"
)

// DutyFeeHandler exposes the per-package duty fee ledger.
type DutyFeeHandler struct {
	Ledger *services.DutyFeeLedger
}

func (h *DutyFeeHandler) List(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	packageID := r.PathValue("packageID")
	fees, err := h.Ledger.List(r.Context(), c.CompanyID, packageID)
	if err != nil {
		writeServiceError(w, r, "list duty fees", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.ListDutyFeesResponse{DutyFees: dto.NewDutyFeeList(fees)})
}

func (h *DutyFeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.DutyFeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// The path is authoritative for the package.
	req.PackageID = r.PathValue("packageID")

	fee, err := h.Ledger.Create(r.Context(), c, dutyFeeInput(req))
	if err != nil {
		writeServiceError(w, r, "create duty fee", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, dto.NewDutyFeeResponse(fee))
}

func (h *DutyFeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.DutyFeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fee, err := h.Ledger.Update(r.Context(), c, r.PathValue("id"), dutyFeeInput(req))
	if err != nil {
		writeServiceError(w, r, "update duty fee", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.NewDutyFeeResponse(fee))
}

// Delete accepts an optional ?package_id= that must match the fee's package.
func (h *DutyFeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	packageID := strings.TrimSpace(r.URL.Query().Get("package_id"))
	if err := h.Ledger.Delete(r.Context(), c, r.PathValue("id"), packageID); err != nil {
		writeServiceError(w, r, "delete duty fee", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DutyFeeHandler) Total(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	packageID := r.PathValue("packageID")
	currency := domain.Currency(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))))
	total, err := h.Ledger.TotalByCurrency(r.Context(), c.CompanyID, packageID, currency)
	if err != nil {
		writeServiceError(w, r, "total duty fees", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.DutyFeeTotalResponse{
		PackageID: packageID,
		Currency:  currency,
		Total:     total,
	})
}

func (h *DutyFeeHandler) Grouped(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	packageID := r.PathValue("packageID")
	groups, err := h.Ledger.GroupedByCurrency(r.Context(), c.CompanyID, packageID)
	if err != nil {
		writeServiceError(w, r, "group duty fees", err)
		return
	}

	res := dto.GroupedDutyFeesResponse{
		PackageID: packageID,
		Groups:    make([]dto.DutyFeeGroupResponse, 0, len(groups)),
	}
	for _, g := range groups {
		res.Groups = append(res.Groups, dto.DutyFeeGroupResponse{
			Currency: g.Currency,
			Total:    g.Total,
			Fees:     dto.NewDutyFeeList(g.Fees),
		})
	}
	writeJSON(w, r, http.StatusOK, res)
}

func dutyFeeInput(req dto.DutyFeeRequest) services.DutyFeeInput {
	return services.DutyFeeInput{
		PackageID:     req.PackageID,
		FeeType:       req.FeeType,
		CustomFeeType: req.CustomFeeType,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
	}
}
