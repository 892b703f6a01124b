package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	assignsvc "github.com/stockroomhq/stockroom-backend/internal/assignments"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

type assignRequest struct {
	ProductID  string `json:"product_id" validate:"required,uuid"`
	EmployeeID string `json:"employee_id" validate:"required,uuid"`
	Qty        int    `json:"qty" validate:"omitempty,min=1"`
}

// AssignmentCreate places units on hold for an employee.
func AssignmentCreate(svc assignsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body assignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, _ := uuid.Parse(body.ProductID)
		employeeID, _ := uuid.Parse(body.EmployeeID)

		assignment, err := svc.Assign(r.Context(), assignsvc.AssignInput{
			ProductID:  productID,
			EmployeeID: employeeID,
			Qty:        body.Qty,
			AssignedBy: actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, assignment)
	}
}

// AssignmentRelease returns an assignment's units to the available pool.
func AssignmentRelease(svc assignsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		assignmentID, err := pathUUID(r, "assignmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		assignment, err := svc.Release(r.Context(), assignmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, assignment)
	}
}

// AssignmentGet loads one assignment with its product and employee.
func AssignmentGet(svc assignsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		assignmentID, err := pathUUID(r, "assignmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		assignment, err := svc.Get(r.Context(), assignmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, assignment)
	}
}

// AssignmentList pages through assignments with optional filters.
func AssignmentList(svc assignsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		filter := assignsvc.ListFilter{}

		employeeID, err := validators.ParseQueryUUID(r, "employee_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.EmployeeID = employeeID

		productID, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.ProductID = productID

		activeOnly, err := validators.ParseQueryBool(r, "active_only")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.ActiveOnly = activeOnly

		page, err := validators.ParseQueryPage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Page = page

		assignments, next, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"assignments": assignments, "next_cursor": next})
	}
}
