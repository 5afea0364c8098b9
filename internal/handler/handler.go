package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"labslot/internal/attendance"
	"labslot/internal/auth"
	"labslot/internal/booking"
	"labslot/internal/config"
	"labslot/internal/metrics"
	"labslot/internal/otp"
	"labslot/internal/profile"
	"labslot/internal/timetable"
	"labslot/internal/user"
)

// Handler binds the portal services to the HTTP surface.
type Handler struct {
	cfg        config.App
	users      *user.Service
	userRepo   *user.Repository
	otp        *otp.Service
	booking    *booking.Service
	stats      *attendance.Service
	profiles   *profile.Repository
	timetables *timetable.Service
}

// New creates a handler.
func New(cfg config.App, users *user.Service, userRepo *user.Repository, otpSvc *otp.Service, bookingSvc *booking.Service, statsSvc *attendance.Service, profiles *profile.Repository, timetables *timetable.Service) *Handler {
	return &Handler{
		cfg:        cfg,
		users:      users,
		userRepo:   userRepo,
		otp:        otpSvc,
		booking:    bookingSvc,
		stats:      statsSvc,
		profiles:   profiles,
		timetables: timetables,
	}
}

// Register wires all routes onto the router.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/auth/register", h.RegisterUser)
	r.POST("/auth/login", h.Login)
	r.GET("/profile/leaderboard", h.Leaderboard)

	authd := r.Group("/", auth.RequireAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))

	faculty := authd.Group("/", auth.RequireRole(auth.RoleFaculty))
	student := authd.Group("/", auth.RequireRole(auth.RoleStudent))

	faculty.POST("/attendance/generate-otp", h.GenerateOTP)
	faculty.GET("/attendance/active-otp", h.ActiveOTP)
	student.POST("/attendance/submit-otp", h.SubmitSlotOTP)
	student.POST("/attendance/mark", h.MarkAttendance)
	student.GET("/attendance/stats", h.AttendanceStats)

	faculty.POST("/slots", h.CreateSlot)
	authd.GET("/slots", h.ListSlots)
	// Not nested under /slots: a static segment there would collide
	// with the :id wildcard in gin's route tree.
	faculty.GET("/my-slots", h.MySlots)
	authd.GET("/slots/:id", h.GetSlot)
	faculty.DELETE("/slots/:id", h.DeleteSlot)

	student.POST("/bookings", h.CreateBooking)
	student.GET("/bookings/my-bookings", h.MyBookings)
	authd.GET("/bookings/slot/:slotId", h.SlotBookings)

	student.GET("/profile/me", h.MyProfile)
	faculty.PUT("/profile/update-points", h.UpdatePoints)
	faculty.GET("/profile/search", h.SearchStudents)

	authd.GET("/timetable", h.GetTimetable)
	faculty.POST("/timetable", h.SaveTimetable)
}

// ---------- Auth ----------

type registerRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	Role       string `json:"role" binding:"omitempty,oneof=student faculty"`
	Department string `json:"department"`
}

func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.users.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Role, req.Department)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	h.respondWithTokens(c, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	h.respondWithTokens(c, http.StatusOK, u)
}

func (h *Handler) respondWithTokens(c *gin.Context, status int, u user.User) {
	tokens, err := auth.Issue(u.ID, u.Role, u.Department, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(status, gin.H{
		"user":          u,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// ---------- OTP / Attendance ----------

type generateOTPRequest struct {
	SlotID     string `json:"slotId"`
	Period     int    `json:"period"`
	Department string `json:"department"`
}

// GenerateOTP issues a code for either scope: a slotId selects the
// 6-digit/15s slot path, a period+department pair selects the
// 4-digit/20s class path.
func (h *Handler) GenerateOTP(c *gin.Context) {
	var req generateOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := auth.FromContext(c)

	var (
		code otp.Code
		err  error
	)
	switch {
	case req.SlotID != "":
		code, err = h.otp.IssueForSlot(c.Request.Context(), req.SlotID, claims.Subject)
	case req.Period > 0 && req.Department != "":
		code, err = h.otp.IssueForClass(c.Request.Context(), req.Department, req.Period, claims.Subject)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide slotId or period and department"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	metrics.CodesIssued.WithLabelValues(string(code.Scope.Kind)).Inc()
	c.JSON(http.StatusOK, gin.H{"success": true, "code": code.Value, "expiresAt": code.ExpiresAt})
}

// ActiveOTP returns the faculty member's currently live code, or a null
// body when nothing is live. The faculty UI polls this.
func (h *Handler) ActiveOTP(c *gin.Context) {
	claims := auth.FromContext(c)
	code, ok, err := h.otp.ActiveForIssuer(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, code)
}

type submitSlotOTPRequest struct {
	SlotID string `json:"slotId" binding:"required"`
	OTP    string `json:"otp" binding:"required"`
}

func (h *Handler) SubmitSlotOTP(c *gin.Context) {
	var req submitSlotOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := auth.FromContext(c)
	err := h.otp.RedeemForSlot(c.Request.Context(), req.SlotID, req.OTP, claims.Subject)
	metrics.Redemptions.WithLabelValues(string(otp.KindSlot), outcomeLabel(err)).Inc()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Attendance marked for lab slot"})
}

type markAttendanceRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := auth.FromContext(c)
	err := h.otp.RedeemForClass(c.Request.Context(), req.Code, claims.Subject, claims.Department)
	metrics.Redemptions.WithLabelValues(string(otp.KindClass), outcomeLabel(err)).Inc()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Attendance Marked Successfully"})
}

func (h *Handler) AttendanceStats(c *gin.Context) {
	claims := auth.FromContext(c)
	st, err := h.stats.Stats(c.Request.Context(), claims.Department, claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// ---------- Slots ----------

type createSlotRequest struct {
	Date         time.Time `json:"date" binding:"required"`
	StartTime    string    `json:"startTime" binding:"required"`
	EndTime      string    `json:"endTime" binding:"required"`
	LabName      string    `json:"labName" binding:"required"`
	SeatCapacity int       `json:"seatCapacity" binding:"required,gt=0"`
	Department   string    `json:"department" binding:"required"`
}

func (h *Handler) CreateSlot(c *gin.Context) {
	var req createSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := auth.FromContext(c)
	slot, err := h.booking.CreateSlot(c.Request.Context(), booking.Slot{
		FacultyID:    claims.Subject,
		Date:         req.Date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		LabName:      req.LabName,
		SeatCapacity: req.SeatCapacity,
		Department:   req.Department,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) ListSlots(c *gin.Context) {
	claims := auth.FromContext(c)
	slots, err := h.booking.ListForDepartment(c.Request.Context(), claims.Department)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (h *Handler) MySlots(c *gin.Context) {
	claims := auth.FromContext(c)
	slots, err := h.booking.ListMine(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (h *Handler) GetSlot(c *gin.Context) {
	slot, err := h.booking.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func (h *Handler) DeleteSlot(c *gin.Context) {
	claims := auth.FromContext(c)
	if err := h.booking.Delete(c.Request.Context(), c.Param("id"), claims.Subject); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Slot removed"})
}

// ---------- Bookings ----------

type createBookingRequest struct {
	SlotID string `json:"slotId" binding:"required"`
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := auth.FromContext(c)
	b, err := h.booking.Book(c.Request.Context(), req.SlotID, claims.Subject)
	metrics.Bookings.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) MyBookings(c *gin.Context) {
	claims := auth.FromContext(c)
	bookings, err := h.booking.MyBookings(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) SlotBookings(c *gin.Context) {
	bookings, err := h.booking.SlotBookings(c.Request.Context(), c.Param("slotId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// ---------- Profiles ----------

func (h *Handler) MyProfile(c *gin.Context) {
	claims := auth.FromContext(c)
	p, err := h.profiles.GetOrCreate(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) Leaderboard(c *gin.Context) {
	entries, err := h.profiles.Leaderboard(c.Request.Context(), 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

type updatePointsRequest struct {
	StudentID string `json:"studentId" binding:"required"`
	profile.PointsDelta
}

func (h *Handler) UpdatePoints(c *gin.Context) {
	var req updatePointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.profiles.AddPoints(c.Request.Context(), req.StudentID, req.PointsDelta)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchStudents(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter required"})
		return
	}
	users, err := h.userRepo.SearchStudents(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, users)
}

// ---------- Timetable ----------

// GetTimetable serves the weekly schedule. Students get their
// department's timetable, optionally narrowed by year and semester
// query params; faculty get every timetable in one list.
func (h *Handler) GetTimetable(c *gin.Context) {
	claims := auth.FromContext(c)

	if claims.Role == auth.RoleFaculty {
		tables, err := h.timetables.ForFaculty(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, tables)
		return
	}

	year, _ := strconv.Atoi(c.Query("year"))
	semester, _ := strconv.Atoi(c.Query("semester"))
	t, err := h.timetables.ForStudent(c.Request.Context(), claims.Department, year, semester)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type saveTimetableRequest struct {
	Department string              `json:"department" binding:"required"`
	Year       int                 `json:"year" binding:"required,gt=0"`
	Semester   int                 `json:"semester" binding:"required,gt=0"`
	Schedule   map[string][]string `json:"schedule" binding:"required"`
}

func (h *Handler) SaveTimetable(c *gin.Context) {
	var req saveTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.timetables.Save(c.Request.Context(), timetable.Timetable{
		Department: req.Department,
		Year:       req.Year,
		Semester:   req.Semester,
		Schedule:   req.Schedule,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ---------- Errors ----------

// writeError maps service errors to HTTP statuses with user-displayable
// messages. The two redeem paths keep their different granularity: the
// slot path reports invalid and expired separately, the class path
// reports one combined message.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Slot not found"})
	case errors.Is(err, booking.ErrSlotFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Slot is full"})
	case errors.Is(err, booking.ErrDuplicateBooking):
		c.JSON(http.StatusConflict, gin.H{"error": "You have already booked this slot"})
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No booking found for this slot"})
	case errors.Is(err, booking.ErrNotOwner), errors.Is(err, otp.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
	case errors.Is(err, otp.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OTP"})
	case errors.Is(err, otp.ErrCodeExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "OTP expired"})
	case errors.Is(err, otp.ErrInvalidOrExpiredCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or Expired OTP"})
	case errors.Is(err, otp.ErrDepartmentMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "This OTP is for a different department"})
	case errors.Is(err, attendance.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Attendance Session not found"})
	case errors.Is(err, attendance.ErrAlreadyMarked):
		c.JSON(http.StatusConflict, gin.H{"error": "Attendance already marked"})
	case errors.Is(err, profile.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Student Profile not found"})
	case errors.Is(err, timetable.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Timetable not found"})
	case errors.Is(err, timetable.ErrBadSchedule):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Schedule contains an unknown day"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// outcomeLabel collapses errors to a small label set for metrics.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, otp.ErrInvalidCode), errors.Is(err, otp.ErrInvalidOrExpiredCode):
		return "invalid"
	case errors.Is(err, otp.ErrCodeExpired):
		return "expired"
	case errors.Is(err, otp.ErrDepartmentMismatch):
		return "department_mismatch"
	case errors.Is(err, attendance.ErrAlreadyMarked):
		return "already_marked"
	case errors.Is(err, booking.ErrSlotFull):
		return "slot_full"
	case errors.Is(err, booking.ErrDuplicateBooking):
		return "duplicate"
	case errors.Is(err, booking.ErrSlotNotFound), errors.Is(err, booking.ErrBookingNotFound):
		return "not_found"
	default:
		return "error"
	}
}
