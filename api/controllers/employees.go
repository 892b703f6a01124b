package controllers

import (
	"net/http"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	employeesvc "github.com/stockroomhq/stockroom-backend/internal/employees"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

type employeeRequest struct {
	Name  string  `json:"name,omitempty"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone *string `json:"phone,omitempty"`
}

func EmployeeCreate(svc employeesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "employee service unavailable"))
			return
		}

		var body employeeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		employee, err := svc.Create(r.Context(), employeesvc.Input{Name: body.Name, Email: body.Email, Phone: body.Phone})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, employee)
	}
}

func EmployeeUpdate(svc employeesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "employee service unavailable"))
			return
		}

		employeeID, err := pathUUID(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body employeeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		employee, err := svc.Update(r.Context(), employeeID, employeesvc.Input{Name: body.Name, Email: body.Email, Phone: body.Phone})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, employee)
	}
}

// EmployeeDeactivate retires an employee. Employees holding assigned
// stock must release it first.
func EmployeeDeactivate(svc employeesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "employee service unavailable"))
			return
		}

		employeeID, err := pathUUID(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Deactivate(r.Context(), employeeID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}

func EmployeeGet(svc employeesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "employee service unavailable"))
			return
		}

		employeeID, err := pathUUID(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		employee, err := svc.Get(r.Context(), employeeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, employee)
	}
}

func EmployeeList(svc employeesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "employee service unavailable"))
			return
		}

		activeOnly, err := validators.ParseQueryBool(r, "active_only")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		employees, err := svc.List(r.Context(), activeOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, employees)
	}
}
