package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/threadboard/server/config"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t  *testing.T
	db *gorm.DB
	r  *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	config.Set(config.AppConfig{
		JWTSecret:                  "router-test-secret",
		DBDriver:                   "sqlite",
		DBPath:                     ":memory:",
		LogLevel:                   "silent",
		GinMode:                    "test",
		GinPath:                    filepath.Join(dir, "gin.log"),
		UploadDir:                  filepath.Join(dir, "uploads"),
		RateLimitPerMinute:         100000,
		RegisterAttemptCooldownSec: -1,
		RegisterMaxPerIPPerDay:     -1,
		MaxReplyDepth:              3,
		ReplyPageSize:              10,
	})
	db, err := config.OpenDatabase(config.Get(), models.All()...)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	hub := utils.NewLiveHub(nil)
	replies := services.NewReplyService(db, hub, config.Get().MaxReplyDepth, config.Get().ReplyPageSize)
	r := SetupRouter(Deps{DB: db, Replies: replies, Hub: hub})
	return &testServer{t: t, db: db, r: r}
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("%s %s: non JSON response %q", method, path, w.Body.String())
	}
	return w, env
}

func (s *testServer) user(name, typ string) (models.User, string) {
	s.t.Helper()
	hash, err := utils.HashPassword("secret123")
	if err != nil {
		s.t.Fatalf("hash: %v", err)
	}
	u := models.User{Username: name, Email: name + "@example.com", PasswordHash: hash, Type: typ}
	if err := s.db.Create(&u).Error; err != nil {
		s.t.Fatalf("create user: %v", err)
	}
	token, err := utils.GenerateToken(u.ID, u.Username, 0)
	if err != nil {
		s.t.Fatalf("token: %v", err)
	}
	return u, token
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func TestRegisterVerifyLoginLogout(t *testing.T) {
	s := newTestServer(t)
	var mailed string
	orig := utils.MailSender
	utils.MailSender = func(to, subject, body string) error {
		mailed = body
		return nil
	}
	defer func() { utils.MailSender = orig }()

	w, env := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "email": "Alice@Example.com", "password": "secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register: %d %+v", w.Code, env)
	}
	var reg struct {
		Token string `json:"token"`
		User  struct {
			Type       string `json:"type"`
			Email      string `json:"email"`
			IsVerified bool   `json:"is_verified"`
		} `json:"user"`
	}
	decode(t, env.Data, &reg)
	if reg.User.Type != models.UserTypeUnverified || reg.User.IsVerified || reg.User.Email != "alice@example.com" {
		t.Fatalf("unexpected registered user %+v", reg.User)
	}

	// unverified accounts cannot write
	w, env = s.do(http.MethodPost, "/api/v1/posts", reg.Token, gin.H{"title": "t", "content": "c"})
	if w.Code != http.StatusForbidden || env.Code != 40311 {
		t.Fatalf("unverified create post: %d %+v", w.Code, env)
	}

	// duplicate username
	w, env = s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "email": "other@example.com", "password": "secret123",
	})
	if w.Code != http.StatusConflict || env.Code != 40901 {
		t.Fatalf("duplicate register: %d %+v", w.Code, env)
	}

	code := regexp.MustCompile(`\d{6}`).FindString(mailed)
	if code == "" {
		t.Fatalf("no code in mail %q", mailed)
	}
	w, env = s.do(http.MethodPost, "/api/v1/auth/verify-email", "", gin.H{"email": "alice@example.com", "code": "000000x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong code accepted: %d", w.Code)
	}
	// the wrong attempt consumed the code; request a fresh one
	mailed = ""
	w, _ = s.do(http.MethodPost, "/api/v1/auth/resend-verification", "", gin.H{"email": "alice@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("resend: %d", w.Code)
	}
	code = regexp.MustCompile(`\d{6}`).FindString(mailed)
	w, env = s.do(http.MethodPost, "/api/v1/auth/verify-email", "", gin.H{"email": "alice@example.com", "code": code})
	if w.Code != http.StatusOK {
		t.Fatalf("verify: %d %+v", w.Code, env)
	}
	decode(t, env.Data, &reg)
	if reg.User.Type != models.UserTypeUser || !reg.User.IsVerified {
		t.Fatalf("verify did not upgrade user %+v", reg.User)
	}

	w, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", w.Code)
	}
	w, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "secret123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %+v", w.Code, env)
	}
	var login struct {
		Token string `json:"token"`
	}
	decode(t, env.Data, &login)

	if w, env = s.do(http.MethodGet, "/api/v1/users/me", login.Token, nil); w.Code != http.StatusOK {
		t.Fatalf("me: %d %+v", w.Code, env)
	}
	if w, env = s.do(http.MethodPost, "/api/v1/auth/logout", login.Token, nil); w.Code != http.StatusOK {
		t.Fatalf("logout: %d %+v", w.Code, env)
	}
	w, env = s.do(http.MethodGet, "/api/v1/users/me", login.Token, nil)
	if w.Code != http.StatusUnauthorized || env.Code != 40104 {
		t.Fatalf("revoked token still accepted: %d %+v", w.Code, env)
	}
}

type replyJSON struct {
	ID      uint        `json:"id"`
	Depth   int         `json:"depth"`
	Path    string      `json:"path"`
	RootID  uint        `json:"root_id"`
	Content string      `json:"content"`
	Replies []replyJSON `json:"replies"`
}

func TestReplyTreeOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner, ownerToken := s.user("owner", models.UserTypeUser)
	_, otherToken := s.user("other", models.UserTypeUser)
	_, strangerToken := s.user("stranger", models.UserTypeUser)
	post := models.Post{UserID: owner.ID, Title: "t", Content: "c", Status: models.PostStatusPublished}
	if err := s.db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	base := fmt.Sprintf("/api/v1/posts/%d/replies", post.ID)

	w, env := s.do(http.MethodPost, base, otherToken, gin.H{"comment": "root"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create reply: %d %+v", w.Code, env)
	}
	var created struct {
		Reply replyJSON `json:"reply"`
	}
	decode(t, env.Data, &created)
	root := created.Reply.ID

	if w, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/replies/%d/sub", root), otherToken, gin.H{"comment": "child"}); w.Code != http.StatusCreated {
		t.Fatalf("create child: %d %+v", w.Code, env)
	}
	w, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/replies/%d/sub", root), otherToken, gin.H{"comment": "grandchild", "targetPath": []int{0}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create grandchild: %d %+v", w.Code, env)
	}
	decode(t, env.Data, &created)
	if created.Reply.Depth != 3 || created.Reply.Path != "0.0" || created.Reply.RootID != root {
		t.Fatalf("grandchild placed at %+v", created.Reply)
	}

	w, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/replies/%d/sub", root), otherToken, gin.H{"comment": "too deep", "targetPath": "0.0"})
	if w.Code != http.StatusUnprocessableEntity || env.Code != 42220 {
		t.Fatalf("depth limit: %d %+v", w.Code, env)
	}
	w, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/replies/%d/sub", root), otherToken, gin.H{"comment": "x", "targetPath": []int{4}})
	if w.Code != http.StatusNotFound || env.Code != 40421 {
		t.Fatalf("out of range path: %d %+v", w.Code, env)
	}

	w, env = s.do(http.MethodGet, base, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %+v", w.Code, env)
	}
	var page struct {
		Replies []replyJSON `json:"replies"`
		Total   int         `json:"total"`
	}
	decode(t, env.Data, &page)
	if len(page.Replies) != 1 || page.Total != 3 || len(page.Replies[0].Replies) != 1 {
		t.Fatalf("unexpected tree %+v", page)
	}

	nested := fmt.Sprintf("/api/v1/replies/%d/nested?targetPath=0", root)
	if w, env = s.do(http.MethodDelete, nested, strangerToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("stranger delete: %d %+v", w.Code, env)
	}
	w, env = s.do(http.MethodDelete, nested, ownerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("post owner delete: %d %+v", w.Code, env)
	}
	var removed struct {
		Removed int `json:"removed"`
	}
	decode(t, env.Data, &removed)
	if removed.Removed != 2 {
		t.Fatalf("removed %d, want 2", removed.Removed)
	}

	_, env = s.do(http.MethodGet, base, "", nil)
	decode(t, env.Data, &page)
	if page.Total != 1 || len(page.Replies[0].Replies) != 0 {
		t.Fatalf("subtree not removed %+v", page)
	}
}

func TestPostLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, authorToken := s.user("author", models.UserTypeUser)
	_, adminToken := s.user("mod", models.UserTypeAdmin)

	w, env := s.do(http.MethodPost, "/api/v1/posts", authorToken, gin.H{"title": "Hello", "content": "<p>hi</p><script>x</script>"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %+v", w.Code, env)
	}
	var out struct {
		Post struct {
			ID      uint   `json:"id"`
			Status  string `json:"status"`
			Content string `json:"content"`
		} `json:"post"`
	}
	decode(t, env.Data, &out)
	if out.Post.Status != models.PostStatusDraft || out.Post.Content != "<p>hi</p>" {
		t.Fatalf("unexpected post %+v", out.Post)
	}
	path := fmt.Sprintf("/api/v1/posts/%d", out.Post.ID)

	if w, _ = s.do(http.MethodGet, path, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("draft visible to anonymous: %d", w.Code)
	}
	if w, _ = s.do(http.MethodGet, path, authorToken, nil); w.Code != http.StatusOK {
		t.Fatalf("draft hidden from author: %d", w.Code)
	}
	// replies are refused until the post is published
	w, env = s.do(http.MethodPost, path+"/replies", authorToken, gin.H{"comment": "early"})
	if w.Code != http.StatusConflict || env.Code != 40920 {
		t.Fatalf("reply on draft: %d %+v", w.Code, env)
	}

	if w, env = s.do(http.MethodPatch, path+"/status", authorToken, gin.H{"status": "published"}); w.Code != http.StatusOK {
		t.Fatalf("publish: %d %+v", w.Code, env)
	}
	if w, _ = s.do(http.MethodGet, path, "", nil); w.Code != http.StatusOK {
		t.Fatalf("published post hidden: %d", w.Code)
	}

	if w, env = s.do(http.MethodDelete, path, authorToken, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d %+v", w.Code, env)
	}
	if w, _ = s.do(http.MethodGet, path, authorToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("deleted post visible to author: %d", w.Code)
	}
	if w, _ = s.do(http.MethodPost, path+"/recover", authorToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("non admin reached recover route: %d", w.Code)
	}
	w, env = s.do(http.MethodPost, "/api/v1/admin"+path[len("/api/v1"):]+"/recover", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recover: %d %+v", w.Code, env)
	}
	decode(t, env.Data, &out)
	if out.Post.Status != models.PostStatusPublished {
		t.Fatalf("recovered to %q, want published", out.Post.Status)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	_, token := s.user("plain", models.UserTypeUser)
	w, env := s.do(http.MethodGet, "/api/v1/admin/users", token, nil)
	if w.Code != http.StatusForbidden || env.Code != 40300 {
		t.Fatalf("non admin: %d %+v", w.Code, env)
	}
	w, env = s.do(http.MethodGet, "/api/v1/admin/users", "", nil)
	if w.Code != http.StatusUnauthorized || env.Code != 40101 {
		t.Fatalf("anonymous: %d %+v", w.Code, env)
	}
}

func TestBannedUserIsRejected(t *testing.T) {
	s := newTestServer(t)
	u, token := s.user("troll", models.UserTypeUser)
	if err := s.db.Model(&u).Update("banned", true).Error; err != nil {
		t.Fatalf("ban: %v", err)
	}
	w, env := s.do(http.MethodGet, "/api/v1/users/me", token, nil)
	if w.Code != http.StatusForbidden || env.Code != 40301 {
		t.Fatalf("banned user: %d %+v", w.Code, env)
	}
}

func TestViewingPostRecordsHistory(t *testing.T) {
	s := newTestServer(t)
	reader, token := s.user("reader", models.UserTypeUser)
	post := models.Post{UserID: reader.ID, Title: "Gophers", Content: "c", Status: models.PostStatusPublished}
	if err := s.db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	for i := 0; i < 2; i++ {
		if w, _ := s.do(http.MethodGet, fmt.Sprintf("/api/v1/posts/%d", post.ID), token, nil); w.Code != http.StatusOK {
			t.Fatalf("get post: %d", w.Code)
		}
	}
	w, env := s.do(http.MethodGet, "/api/v1/history?q=goph", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: %d %+v", w.Code, env)
	}
	var page struct {
		Items []struct {
			PostID    uint `json:"post_id"`
			ViewCount int  `json:"view_count"`
		} `json:"items"`
	}
	decode(t, env.Data, &page)
	if len(page.Items) != 1 || page.Items[0].PostID != post.ID || page.Items[0].ViewCount != 2 {
		t.Fatalf("unexpected history %+v", page.Items)
	}

	if w, _ = s.do(http.MethodDelete, "/api/v1/history", token, nil); w.Code != http.StatusOK {
		t.Fatalf("clear: %d", w.Code)
	}
	_, env = s.do(http.MethodGet, "/api/v1/history", token, nil)
	decode(t, env.Data, &page)
	if len(page.Items) != 0 {
		t.Fatalf("history not cleared %+v", page.Items)
	}
}

func TestUnknownRouteAnswersJSON(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/api/v1/nope", "", nil)
	if w.Code != http.StatusNotFound || env.Code != 40400 {
		t.Fatalf("unexpected %d %+v", w.Code, env)
	}
}

func TestContactMessageValidation(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodPost, "/api/v1/messages", "", gin.H{"email": "not-an-email", "subject": "s", "message": "m"})
	if w.Code != http.StatusBadRequest || env.Code != 40091 {
		t.Fatalf("bad email: %d %+v", w.Code, env)
	}
	w, env = s.do(http.MethodPost, "/api/v1/messages", "", gin.H{"email": "a@b.co", "subject": "Hi", "message": "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %+v", w.Code, env)
	}
	_, adminToken := s.user("boss", models.UserTypeSuperAdmin)
	w, env = s.do(http.MethodGet, "/api/v1/admin/messages?status=open", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin list: %d %+v", w.Code, env)
	}
	var page struct {
		Items []models.ContactMessage `json:"items"`
	}
	decode(t, env.Data, &page)
	if len(page.Items) != 1 || page.Items[0].Subject != "Hi" {
		t.Fatalf("unexpected messages %+v", page.Items)
	}
}

func TestUploadDeleteAndPurge(t *testing.T) {
	s := newTestServer(t)
	owner, token := s.user("uploader", models.UserTypeUser)
	_, otherToken := s.user("nosy", models.UserTypeUser)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "Note.TXT")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fmt.Fprint(fw, "plain text attachment")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var up struct {
		Key         string `json:"key"`
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		UserID      uint   `json:"user_id"`
	}
	decode(t, env.Data, &up)
	if up.Key == "" || up.UserID != owner.ID || filepath.Ext(up.URL) != ".txt" || up.ContentType != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected upload %+v", up)
	}
	var rec models.UploadedFile
	if err := s.db.Where(&models.UploadedFile{Key: up.Key}).First(&rec).Error; err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		t.Fatalf("stored file: %v", err)
	}

	if w, env := s.do(http.MethodDelete, "/api/v1/files/"+up.Key, otherToken, nil); w.Code != http.StatusForbidden || env.Code != 40330 {
		t.Fatalf("stranger delete: %d %+v", w.Code, env)
	}
	if w, env := s.do(http.MethodDelete, "/api/v1/files/"+up.Key, token, nil); w.Code != http.StatusOK {
		t.Fatalf("owner delete: %d %+v", w.Code, env)
	}
	if _, err := os.Stat(rec.FilePath); !os.IsNotExist(err) {
		t.Fatalf("file left on disk: %v", err)
	}

	past := time.Now().Add(-time.Minute)
	stale := filepath.Join(t.TempDir(), "stale.bin")
	if err := os.WriteFile(stale, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.db.Create(&models.UploadedFile{Key: "stale", UserID: owner.ID, FilePath: stale, URL: "/static/uploads/stale.bin", ExpireAt: &past})
	s.db.Create(&models.UploadedFile{Key: "fresh", UserID: owner.ID, FilePath: stale + ".keep", URL: "/static/uploads/fresh.bin"})
	n, err := utils.PurgeExpiredUploads(s.db, time.Now(), 10)
	if err != nil || n != 1 {
		t.Fatalf("purge removed %d: %v", n, err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expired file kept")
	}
}

func TestAdminUserModeration(t *testing.T) {
	s := newTestServer(t)
	admin, adminToken := s.user("warden", models.UserTypeAdmin)
	root, rootToken := s.user("root", models.UserTypeSuperAdmin)
	target, targetToken := s.user("member", models.UserTypeUser)
	userPath := fmt.Sprintf("/api/v1/admin/users/%d", target.ID)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		code   int
	}{
		{"self ban", http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/ban", admin.ID), adminToken, http.StatusBadRequest, 40051},
		{"ban super admin", http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/ban", root.ID), adminToken, http.StatusForbidden, 40320},
		{"ban member", http.MethodPost, userPath + "/ban", adminToken, http.StatusOK, 0},
		{"unban member", http.MethodPost, userPath + "/unban", adminToken, http.StatusOK, 0},
		{"promote member", http.MethodPost, userPath + "/promote", adminToken, http.StatusOK, 0},
		{"promote twice", http.MethodPost, userPath + "/promote", rootToken, http.StatusConflict, 40930},
		{"admin demotes admin", http.MethodPost, userPath + "/demote", adminToken, http.StatusForbidden, 40321},
		{"super admin demotes", http.MethodPost, userPath + "/demote", rootToken, http.StatusOK, 0},
		{"missing user", http.MethodGet, "/api/v1/admin/users/999", adminToken, http.StatusNotFound, 40410},
	}
	for _, c := range cases {
		w, env := s.do(c.method, c.path, c.token, nil)
		if w.Code != c.status || env.Code != c.code {
			t.Fatalf("%s: %d %+v", c.name, w.Code, env)
		}
	}

	if w, _ := s.do(http.MethodPost, userPath+"/ban", adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("ban: %d", w.Code)
	}
	if w, env := s.do(http.MethodGet, "/api/v1/users/me", targetToken, nil); w.Code != http.StatusForbidden || env.Code != 40301 {
		t.Fatalf("banned member still served: %d %+v", w.Code, env)
	}
	w, env := s.do(http.MethodGet, "/api/v1/admin/users?banned=true", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %+v", w.Code, env)
	}
	var page struct {
		Items []struct {
			ID uint `json:"id"`
		} `json:"items"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decode(t, env.Data, &page)
	if page.Pagination.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != target.ID {
		t.Fatalf("unexpected banned list %+v", page)
	}

	if w, env := s.do(http.MethodDelete, userPath, rootToken, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d %+v", w.Code, env)
	}
	if w, _ := s.do(http.MethodGet, userPath, adminToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("deleted user still listed: %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	u, token := s.user("counter", models.UserTypeUser)
	post := models.Post{UserID: u.ID, Title: "Numbers", Content: "c", Status: models.PostStatusPublished}
	if err := s.db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	postPath := fmt.Sprintf("/api/v1/posts/%d", post.ID)
	if w, env := s.do(http.MethodPost, postPath+"/replies", token, gin.H{"comment": "first"}); w.Code != http.StatusCreated {
		t.Fatalf("reply: %d %+v", w.Code, env)
	}
	s.do(http.MethodGet, postPath, token, nil)

	_, env := s.do(http.MethodGet, "/api/v1/stats", "", nil)
	var global struct {
		Users       int64 `json:"user_count"`
		Posts       int64 `json:"post_count"`
		Replies     int64 `json:"reply_count"`
		DailyActive int64 `json:"daily_active_count"`
	}
	decode(t, env.Data, &global)
	if global.Users != 1 || global.Posts != 1 || global.Replies != 1 || global.DailyActive != 1 {
		t.Fatalf("unexpected totals %+v", global)
	}

	w, env := s.do(http.MethodGet, postPath+"/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("post stats: %d %+v", w.Code, env)
	}
	var ps struct {
		TopLevel int64 `json:"top_level_count"`
		All      int64 `json:"reply_count"`
		Readers  int64 `json:"reader_count"`
		Views    int64 `json:"view_count"`
	}
	decode(t, env.Data, &ps)
	if ps.TopLevel != 1 || ps.All != 1 || ps.Readers != 1 || ps.Views != 1 {
		t.Fatalf("unexpected post stats %+v", ps)
	}
	if w, _ := s.do(http.MethodGet, "/api/v1/posts/999/stats", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing post stats: %d", w.Code)
	}
}

func TestClientConfigReportsReplyLimits(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/api/v1/config", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("config: %d %+v", w.Code, env)
	}
	var out struct {
		Replies struct {
			MaxDepth int `json:"max_depth"`
			PageSize int `json:"page_size"`
		} `json:"replies"`
	}
	decode(t, env.Data, &out)
	if out.Replies.MaxDepth != 3 || out.Replies.PageSize != 10 {
		t.Fatalf("unexpected reply limits %+v", out.Replies)
	}
}
