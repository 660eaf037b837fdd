package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/threadboard/server/config"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	config.Set(config.AppConfig{JWTSecret: "mw-test-secret", DBDriver: "sqlite", DBPath: ":memory:", LogLevel: "silent"})
	db, err := config.OpenDatabase(config.Get(), models.All()...)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return db
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitPerIP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(4))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := func(ip string) int {
		rq := httptest.NewRequest(http.MethodGet, "/", nil)
		rq.RemoteAddr = ip + ":1000"
		return serve(r, rq).Code
	}
	// burst is half the per minute rate
	if a, b := req("198.51.100.1"), req("198.51.100.1"); a != http.StatusNoContent || b != http.StatusNoContent {
		t.Fatalf("burst rejected: %d %d", a, b)
	}
	if c := req("198.51.100.1"); c != http.StatusTooManyRequests {
		t.Fatalf("third request got %d", c)
	}
	if c := req("198.51.100.2"); c != http.StatusNoContent {
		t.Fatalf("other ip limited: %d", c)
	}
}

func TestIPLimiterForgetsIdleVisitors(t *testing.T) {
	l := newIPLimiter(60)
	now := time.Now()
	l.allow("a", now)
	l.allow("b", now)
	l.allow("b", now.Add(limiterIdle+time.Second))
	if _, ok := l.visitors["a"]; ok {
		t.Fatalf("idle visitor kept")
	}
	if _, ok := l.visitors["b"]; !ok {
		t.Fatalf("active visitor dropped")
	}
}

func TestAuthRequired(t *testing.T) {
	db := openDB(t)
	u := models.User{Username: "writer", Email: "w@example.com", Type: models.UserTypeUser}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := utils.GenerateToken(u.ID, u.Username, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	ghost, _ := utils.GenerateToken(u.ID+100, "ghost", time.Hour)

	r := gin.New()
	r.GET("/me", AuthRequired(db), func(c *gin.Context) {
		a := CurrentActor(c)
		if !a.Authenticated() || !a.Verified || a.Admin || CurrentClaims(c) == nil {
			c.Status(http.StatusTeapot)
			return
		}
		c.String(http.StatusOK, a.Username)
	})

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
		{"deleted user", "Bearer " + ghost, "", http.StatusUnauthorized},
		{"header", "Bearer " + token, "", http.StatusOK},
		{"query token", "", "?access_token=" + token, http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me"+c.query, nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		if w := serve(r, req); w.Code != c.status {
			t.Fatalf("%s: status %d, want %d (%s)", c.name, w.Code, c.status, w.Body.String())
		}
	}
}

func TestAuthOptionalAndAdminRequired(t *testing.T) {
	db := openDB(t)
	admin := models.User{Username: "root", Email: "r@example.com", Type: models.UserTypeAdmin}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, _ := utils.GenerateToken(admin.ID, admin.Username, time.Hour)

	r := gin.New()
	r.GET("/open", AuthOptional(db), func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.String(http.StatusOK, "anon")
			return
		}
		c.String(http.StatusOK, CurrentUser(c).Username)
	})
	r.GET("/admin", AuthRequired(db), AdminRequired(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/open", nil))
	if w.Body.String() != "anon" {
		t.Fatalf("anonymous got %q", w.Body.String())
	}
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	if w := serve(r, req); w.Code != http.StatusOK || w.Body.String() != "anon" {
		t.Fatalf("invalid optional token: %d %q", w.Code, w.Body.String())
	}
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if w := serve(r, req); w.Code != http.StatusNoContent {
		t.Fatalf("admin rejected: %d", w.Code)
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := utils.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/things/:id", "200")
	before := testutil.ToFloat64(counter)
	serve(r, httptest.NewRequest(http.MethodGet, "/things/1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/things/2", nil))
	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("counter grew by %v, want 2", got)
	}
}
