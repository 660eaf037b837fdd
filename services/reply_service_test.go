package services

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/threadboard/server/config"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/replytree"
)

type fixture struct {
	db    *gorm.DB
	svc   *ReplyService
	owner Actor
	other Actor
	admin Actor
	post  models.Post
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := config.AppConfig{JWTSecret: "test-secret", DBDriver: "sqlite", DBPath: ":memory:", LogLevel: "silent"}
	config.Set(c)
	db, err := config.OpenDatabase(config.Get(), models.All()...)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	f := &fixture{db: db, svc: NewReplyService(db, nil, 5, 10)}
	f.owner = f.user(t, "owner", models.UserTypeUser)
	f.other = f.user(t, "other", models.UserTypeUser)
	f.admin = f.user(t, "admin", models.UserTypeAdmin)
	f.post = models.Post{UserID: f.owner.UserID, Title: "hello", Content: "body", Status: models.PostStatusPublished}
	if err := db.Create(&f.post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	return f
}

func (f *fixture) user(t *testing.T, name, typ string) Actor {
	t.Helper()
	u := models.User{Username: name, Email: name + "@example.com", Type: typ}
	if err := f.db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return ActorFromUser(&u, nil)
}

func (f *fixture) reply(t *testing.T, a Actor, text string) uint {
	t.Helper()
	v, err := f.svc.Create(context.Background(), a, f.post.ID, text, nil)
	if err != nil {
		t.Fatalf("create %q: %v", text, err)
	}
	return v.ID
}

func (f *fixture) sub(t *testing.T, a Actor, parent uint, path replytree.Path, text string) uint {
	t.Helper()
	v, err := f.svc.CreateNested(context.Background(), a, parent, path, text, nil)
	if err != nil {
		t.Fatalf("create nested %q: %v", text, err)
	}
	return v.ID
}

func (f *fixture) replyCount(t *testing.T) int {
	t.Helper()
	var p models.Post
	if err := f.db.First(&p, f.post.ID).Error; err != nil {
		t.Fatalf("reload post: %v", err)
	}
	return p.ReplyCount
}

func (f *fixture) replyCountRows(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.Reply{}).Where("post_id = ?", f.post.ID).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func contents(views []*ReplyView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Content)
	}
	return out
}

func TestDeletingTopLevelReplyRemovesItsChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.reply(t, f.other, "A")
	f.reply(t, f.other, "B")
	f.sub(t, f.other, a, nil, "A1")

	n, err := f.svc.Delete(ctx, f.other, a)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}

	page, err := f.svc.List(ctx, Actor{}, f.post.ID, ListOptions{Page: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := contents(page.Replies)
	if len(got) != 1 || got[0] != "B" {
		t.Fatalf("expected [B], got %v", got)
	}
	if page.Total != 1 || page.TopLevelTotal != 1 {
		t.Fatalf("unexpected totals %+v", page)
	}
	if c := f.replyCount(t); c != 1 {
		t.Fatalf("reply_count = %d, want 1", c)
	}
}

func TestListPaginatesTopLevelOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var first uint
	for i := 0; i < 12; i++ {
		id := f.reply(t, f.other, string(rune('a'+i)))
		if i == 0 {
			first = id
		}
	}
	f.sub(t, f.other, first, nil, "child")
	f.sub(t, f.other, first, replytree.Path{0}, "grandchild")

	p1, err := f.svc.List(ctx, Actor{}, f.post.ID, ListOptions{Page: 1, PageSize: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if p1.TopLevelTotal != 12 || p1.TopLevelPages != 3 || p1.Total != 14 {
		t.Fatalf("unexpected counts %+v", p1)
	}
	if len(p1.Replies) != 5 || p1.Replies[0].Content != "a" {
		t.Fatalf("unexpected first page %v", contents(p1.Replies))
	}
	kids := p1.Replies[0].Replies
	if len(kids) != 1 || len(kids[0].Replies) != 1 || kids[0].Replies[0].Content != "grandchild" {
		t.Fatalf("children not returned whole")
	}
	if kids[0].Replies[0].Path != "0.0" || kids[0].Replies[0].RootID != first {
		t.Fatalf("grandchild address = %d/%s", kids[0].Replies[0].RootID, kids[0].Replies[0].Path)
	}

	p3, err := f.svc.List(ctx, Actor{}, f.post.ID, ListOptions{Page: 3, PageSize: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := contents(p3.Replies); len(got) != 2 || got[0] != "k" || got[1] != "l" {
		t.Fatalf("unexpected last page %v", got)
	}

	desc, err := f.svc.List(ctx, Actor{}, f.post.ID, ListOptions{Page: 1, PageSize: 5, Desc: true})
	if err != nil {
		t.Fatalf("list desc: %v", err)
	}
	if desc.Replies[0].Content != "l" {
		t.Fatalf("desc order starts with %q", desc.Replies[0].Content)
	}
}

func TestCreateNestedRespectsMaxDepth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.reply(t, f.other, "d1")
	parent := root
	for d := 2; d <= 5; d++ {
		parent = f.sub(t, f.other, parent, nil, "deeper")
	}

	_, err := f.svc.CreateNested(ctx, f.other, parent, nil, "too deep", nil)
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected depth error, got %v", err)
	}
	// same node addressed positionally from the root
	_, err = f.svc.CreateNested(ctx, f.other, root, replytree.Path{0, 0, 0, 0}, "too deep", nil)
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected depth error via path, got %v", err)
	}
	if c := f.replyCount(t); c != 5 {
		t.Fatalf("reply_count = %d, want 5", c)
	}
}

func TestCreatePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unverified := f.user(t, "fresh", models.UserTypeUnverified)
	banned := f.other
	banned.Active = false

	archived := models.Post{UserID: f.owner.UserID, Title: "old", Content: "x", Status: models.PostStatusPublished, IsArchived: true}
	draft := models.Post{UserID: f.owner.UserID, Title: "wip", Content: "x", Status: models.PostStatusDraft}
	for _, p := range []*models.Post{&archived, &draft} {
		if err := f.db.Create(p).Error; err != nil {
			t.Fatalf("create post: %v", err)
		}
	}

	tests := []struct {
		name    string
		actor   Actor
		postID  uint
		content string
		want    error
	}{
		{"anonymous", Actor{}, f.post.ID, "hi", ErrUnauthenticated},
		{"unverified", unverified, f.post.ID, "hi", ErrNotVerified},
		{"banned", banned, f.post.ID, "hi", ErrUserBanned},
		{"archived", f.other, archived.ID, "hi", ErrPostArchived},
		{"draft", f.other, draft.ID, "hi", ErrPostNotPublished},
		{"missing post", f.other, 9999, "hi", ErrPostNotFound},
		{"empty after sanitising", f.other, f.post.ID, "<script>x</script>  ", ErrEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.actor, tt.postID, tt.content, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
	if c := f.replyCount(t); c != 0 {
		t.Fatalf("rejected creates changed reply_count to %d", c)
	}
}

func TestDeletePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := f.user(t, "stranger", models.UserTypeUser)

	r1 := f.reply(t, f.other, "by other")
	if _, err := f.svc.Delete(ctx, stranger, r1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger delete: got %v", err)
	}
	if _, err := f.svc.Delete(ctx, f.owner, r1); err != nil {
		t.Fatalf("post owner delete: %v", err)
	}
	r2 := f.reply(t, f.other, "again")
	if _, err := f.svc.Delete(ctx, f.admin, r2); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := f.svc.Delete(ctx, f.admin, r2); !errors.Is(err, ErrReplyNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestDeleteByPathMatchesDeleteByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.reply(t, f.other, "A")
	f.sub(t, f.other, a, nil, "A1")
	a2 := f.sub(t, f.other, a, nil, "A2")
	f.sub(t, f.other, a2, nil, "A2a")

	before, err := f.svc.List(ctx, Actor{}, f.post.ID, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if v := before.Replies[0].Replies[1]; v.ID != a2 || v.Path != "1" || v.RootID != a {
		t.Fatalf("path 1 under A names %d (%q under %d), want %d", v.ID, v.Path, v.RootID, a2)
	}

	n, err := f.svc.DeleteByPath(ctx, f.other, a, replytree.Path{1})
	if err != nil {
		t.Fatalf("delete by path: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	page, err := f.svc.List(ctx, Actor{}, f.post.ID, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	kids := page.Replies[0].Replies
	if len(kids) != 1 || kids[0].Content != "A1" {
		t.Fatalf("unexpected children after delete %v", contents(kids))
	}
	if _, err := f.svc.DeleteByPath(ctx, f.other, a, replytree.Path{3}); !errors.Is(err, ErrPathOutOfRange) {
		t.Fatalf("out of range path: got %v", err)
	}
	if c := f.replyCount(t); c != 2 {
		t.Fatalf("reply_count = %d, want 2", c)
	}
}

func TestDetachedRepliesDoNotBreakThePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reply(t, f.other, "A")
	b := f.reply(t, f.other, "B")

	// rows left behind when a nested reply commits under a parent that is being deleted
	gone := uint(9999)
	orphan := models.Reply{PostID: f.post.ID, ParentID: &gone, UserID: f.other.UserID, Depth: 2, Content: "lost"}
	if err := f.db.Create(&orphan).Error; err != nil {
		t.Fatalf("insert orphan: %v", err)
	}
	child := models.Reply{PostID: f.post.ID, ParentID: &orphan.ID, UserID: f.other.UserID, Depth: 3, Content: "lost child"}
	if err := f.db.Create(&child).Error; err != nil {
		t.Fatalf("insert orphan child: %v", err)
	}
	f.db.Model(&models.Post{}).Where("id = ?", f.post.ID).UpdateColumn("reply_count", 4)

	page, err := f.svc.List(ctx, Actor{}, f.post.ID, ListOptions{})
	if err != nil {
		t.Fatalf("list with detached rows: %v", err)
	}
	if page.Total != 2 || page.TopLevelTotal != 2 {
		t.Fatalf("unexpected totals %+v", page)
	}

	if _, err := f.svc.CreateNested(ctx, f.other, b, nil, "B1", nil); err != nil {
		t.Fatalf("nested create next to detached rows: %v", err)
	}
	var left int64
	f.db.Model(&models.Reply{}).Where("id IN ?", []uint{orphan.ID, child.ID}).Count(&left)
	if left != 0 {
		t.Fatalf("%d detached rows survived a write", left)
	}
	if c := f.replyCount(t); c != 3 {
		t.Fatalf("reply_count = %d, want 3", c)
	}
	if _, err := f.svc.Delete(ctx, f.other, b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if c := f.replyCount(t); c != 1 {
		t.Fatalf("reply_count = %d, want 1", c)
	}
}

func TestCreateUnderDeletedReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.reply(t, f.other, "A")
	if _, err := f.svc.Delete(ctx, f.other, a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.CreateNested(ctx, f.other, a, nil, "late", nil); !errors.Is(err, ErrReplyNotFound) {
		t.Fatalf("expected ErrReplyNotFound, got %v", err)
	}
	if n := f.replyCountRows(t); n != 0 {
		t.Fatalf("%d rows left", n)
	}
}

func TestAuthorsAreNotPartOfCachedPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.reply(t, f.other, "A")
	f.sub(t, f.owner, a, nil, "A1")

	bare, err := buildPage(f.db, f.post.ID, 1, 10, false)
	if err != nil {
		t.Fatalf("build page: %v", err)
	}
	walkViews(bare.Replies, func(v *ReplyView) {
		if v.Author != nil || v.User != nil {
			t.Fatalf("reply %d carries author data", v.ID)
		}
	})

	if err := f.db.Model(&models.User{}).Where("id = ?", f.owner.UserID).Update("username", "renamed").Error; err != nil {
		t.Fatalf("rename: %v", err)
	}
	page, err := f.svc.List(ctx, Actor{}, f.post.ID, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	top := page.Replies[0]
	if top.Author == nil || top.Author.Username != "other" || top.User != top.Author {
		t.Fatalf("top author %+v / %+v", top.Author, top.User)
	}
	kid := top.Replies[0]
	if kid.Author == nil || kid.Author.Username != "renamed" {
		t.Fatalf("nested author %+v", kid.Author)
	}
	if kid.ReplyID != kid.ID || kid.Comment != "A1" || kid.UserID != f.owner.UserID || !kid.DateCreated.Equal(kid.CreatedAt) {
		t.Fatalf("client field names not filled %+v", kid)
	}
}

func TestListHidesUnpublishedPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hidden := models.Post{UserID: f.owner.UserID, Title: "h", Content: "x", Status: models.PostStatusHidden}
	if err := f.db.Create(&hidden).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	if _, err := f.svc.List(ctx, f.other, hidden.ID, ListOptions{}); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("stranger saw hidden post: %v", err)
	}
	if _, err := f.svc.List(ctx, f.owner, hidden.ID, ListOptions{}); err != nil {
		t.Fatalf("owner list: %v", err)
	}
	if _, err := f.svc.List(ctx, f.admin, hidden.ID, ListOptions{}); err != nil {
		t.Fatalf("admin list: %v", err)
	}
}

func TestActorFromUser(t *testing.T) {
	u := &models.User{ID: 7, Username: "Root", Type: models.UserTypeUnverified}
	a := ActorFromUser(u, []string{" root "})
	if !a.Admin || !a.Verified || !a.Active {
		t.Fatalf("configured admin not elevated: %+v", a)
	}
	u.Banned = true
	if ActorFromUser(u, nil).CanWrite() != ErrUserBanned {
		t.Fatalf("banned user can write")
	}
	if (Actor{}).CanWrite() != ErrUnauthenticated {
		t.Fatalf("anonymous can write")
	}
}
