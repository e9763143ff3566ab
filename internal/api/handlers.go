package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/auth"
)

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		book := appointment.BookRequest{
			DoctorID:   doctorID,
			Date:       req.Date,
			Time:       req.Time,
			PatientRef: req.PatientID,
		}
		if req.DepartmentID != "" {
			departmentID, err := uuid.Parse(req.DepartmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_department_id", "departmentId must be a valid UUID")
				return
			}
			book.DepartmentID = &departmentID
		}
		if req.PatientID == "" {
			book.NewPatient = req.profile()
		}

		res, err := svc.Book(r.Context(), auth.FromContext(r.Context()), book)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := BookAppointmentResponse{
			Message:      "Appointment booked successfully for existing patient",
			IsNewPatient: res.NewPatient,
			PatientID:    res.Patient.PatientID,
			PatientDetails: PatientSummary{
				ID:        res.Patient.ID.String(),
				PatientID: res.Patient.PatientID,
				Name:      res.Patient.Name,
				Email:     res.Patient.Email,
				Contact:   res.Patient.Contact,
			},
			Appointment: res.Appointment,
			Outcome:     res.Outcome,
			Redirected:  res.Redirected,
			Requested:   RequestedSlot{Date: res.RequestedDate, Time: res.RequestedTime},
		}
		if res.NewPatient {
			resp.Message = "New patient registered and appointment booked successfully"
			resp.Note = "Save your Patient ID for future appointments. You can book future appointments using just this Patient ID."
		}
		if res.Redirected {
			resp.Message += "; the requested slot was taken, the next available slot was booked instead"
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := appointment.Filter{
			Status:    appointment.Status(q.Get("status")),
			Date:      q.Get("date"),
			StartDate: q.Get("startDate"),
			EndDate:   q.Get("endDate"),
			Page:      queryInt(r, "page"),
			Limit:     queryInt(r, "limit"),
		}

		var ok bool
		if f.DoctorID, ok = optionalUUID(w, q.Get("doctorId"), "doctorId"); !ok {
			return
		}
		if f.DepartmentID, ok = optionalUUID(w, q.Get("departmentId"), "departmentId"); !ok {
			return
		}

		page, err := svc.List(r.Context(), auth.FromContext(r.Context()), f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), auth.FromContext(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), auth.FromContext(r.Context()), id, req.Status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func patientHistoryHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		hf := appointment.HistoryFilter{Status: appointment.Status(q.Get("status"))}
		if v := q.Get("upcoming"); v != "" {
			upcoming, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_upcoming", "upcoming must be true or false")
				return
			}
			hf.Upcoming = &upcoming
		}

		h, err := svc.PatientHistory(r.Context(), chi.URLParam(r, "patientId"), hf)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.Cancel(r.Context(), id, chi.URLParam(r, "patientId")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Appointment cancelled successfully"})
	}
}

func markMissedHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		n, err := svc.MarkMissedForDate(r.Context(), req.Date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MarkMissedResponse{Date: req.Date, Updated: n})
	}
}

func openSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		date := r.URL.Query().Get("date")

		open, err := svc.OpenSlots(r.Context(), id, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: id.String(), Date: date, Slots: open})
	}
}

func nextAvailableHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		from := r.URL.Query().Get("from")
		if from == "" {
			from = svc.Today()
		}

		c, err := svc.NextAvailable(r.Context(), id, from)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, NextAvailableResponse{
			DoctorID:  id.String(),
			Date:      c.Date,
			StartTime: c.Slot.StartTime,
			EndTime:   c.Slot.EndTime,
		})
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(w http.ResponseWriter, raw, name string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

// queryInt returns 0 for a missing or malformed value; paging defaults
// take over from there.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
