package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/threadboard/server/models"
	"github.com/threadboard/server/replytree"
	"github.com/threadboard/server/utils"
)

// ReplyView is a reply as served to clients, with its author and full subtree.
// Path locates the reply under RootID and can be sent back with RootID to reply or delete by position.
// ReplyID, UserID, Comment, DateCreated and User repeat fields under the names the web client reads.
type ReplyView struct {
	ID          uint               `json:"id"`
	PostID      uint               `json:"post_id"`
	ParentID    *uint              `json:"parent_id"`
	RootID      uint               `json:"root_id"`
	Path        string             `json:"path"`
	Depth       int                `json:"depth"`
	Content     string             `json:"content"`
	Attachments []string           `json:"attachments"`
	CreatedAt   time.Time          `json:"created_at"`
	Author      *models.PublicUser `json:"author,omitempty"`
	Replies     []*ReplyView       `json:"replies"`

	ReplyID     uint               `json:"replyId"`
	UserID      uint               `json:"userId"`
	Comment     string             `json:"comment"`
	DateCreated time.Time          `json:"dateCreated"`
	User        *models.PublicUser `json:"user,omitempty"`
}

func newView(id, postID uint, parentID *uint, userID uint, depth int, content string, attachments []string, created time.Time) *ReplyView {
	if attachments == nil {
		attachments = []string{}
	}
	return &ReplyView{
		ID:          id,
		PostID:      postID,
		ParentID:    parentID,
		RootID:      id,
		Depth:       depth,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   created,
		Replies:     []*ReplyView{},
		ReplyID:     id,
		UserID:      userID,
		Comment:     content,
		DateCreated: created,
	}
}

func (v *ReplyView) setAuthor(u *models.PublicUser) {
	v.Author = u
	v.User = u
}

// ReplyPage is one page of top-level replies. Nested replies are never paginated.
type ReplyPage struct {
	Replies       []*ReplyView `json:"replies"`
	Page          int          `json:"page"`
	PageSize      int          `json:"page_size"`
	TopLevelTotal int          `json:"topLevelTotal"`
	TopLevelPages int          `json:"topLevelPages"`
	Total         int          `json:"total"`
}

// ListOptions selects a page of top-level replies.
type ListOptions struct {
	Page     int
	PageSize int
	// Desc lists top-level replies newest first. Children keep creation order.
	Desc bool
}

// ReplyService reads and mutates a post's reply tree.
type ReplyService struct {
	db       *gorm.DB
	hub      *utils.LiveHub
	maxDepth int
	pageSize int
}

// NewReplyService wires the service. hub may be nil when live events are not served.
func NewReplyService(db *gorm.DB, hub *utils.LiveHub, maxDepth, pageSize int) *ReplyService {
	if maxDepth <= 0 {
		maxDepth = replytree.DefaultMaxDepth
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return &ReplyService{db: db, hub: hub, maxDepth: maxDepth, pageSize: pageSize}
}

// MaxDepth is the deepest level a reply may be created at.
func (s *ReplyService) MaxDepth() int { return s.maxDepth }

// PageSize is the default number of top-level replies per page.
func (s *ReplyService) PageSize() int { return s.pageSize }

// List returns a page of top-level replies of a post, each with its complete subtree.
func (s *ReplyService) List(ctx context.Context, actor Actor, postID uint, opts ListOptions) (*ReplyPage, error) {
	db := s.db.WithContext(ctx)
	post, err := loadPost(db, postID)
	if err != nil {
		return nil, err
	}
	if !actor.CanViewPost(post) {
		return nil, ErrPostNotFound
	}

	page, size := opts.Page, opts.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = s.pageSize
	}
	order := "asc"
	if opts.Desc {
		order = "desc"
	}
	cacheKey := utils.RepliesCacheKey(postID, page, size, order)
	out := &ReplyPage{}
	if !utils.CacheGetJSON(cacheKey, out) {
		if out, err = buildPage(db, postID, page, size, opts.Desc); err != nil {
			return nil, err
		}
		// authors are attached per request so profile edits show up at once
		utils.CacheSetJSON(cacheKey, out, 0)
	}
	if err := attachAuthors(db, out.Replies); err != nil {
		return nil, err
	}
	return out, nil
}

// buildPage assembles one page of the tree without author profiles.
func buildPage(db *gorm.DB, postID uint, page, size int, desc bool) (*ReplyPage, error) {
	forest, err := loadForest(db, postID)
	if err != nil {
		return nil, err
	}
	roots := forest.Roots
	if desc {
		roots = replytree.Reverse(roots)
	}
	slice, pages := replytree.Page(roots, page, size)
	views := make([]*ReplyView, 0, len(slice))
	for _, n := range slice {
		views = append(views, toView(n, n.ID))
	}
	return &ReplyPage{
		Replies:       views,
		Page:          page,
		PageSize:      size,
		TopLevelTotal: len(forest.Roots),
		TopLevelPages: pages,
		Total:         forest.Len(),
	}, nil
}

// Create appends a top-level reply to a post.
func (s *ReplyService) Create(ctx context.Context, actor Actor, postID uint, content string, attachments []string) (*ReplyView, error) {
	reply, err := s.create(ctx, actor, content, attachments, func(tx *gorm.DB) (*models.Post, *uint, int, error) {
		post, err := loadPost(tx.Clauses(clause.Locking{Strength: "UPDATE"}), postID)
		if err != nil {
			return nil, nil, 0, err
		}
		return post, nil, 1, nil
	})
	s.record("create", err)
	return reply, err
}

// CreateNested appends a reply under the node reached from parentID by path.
// An empty path targets parentID itself.
func (s *ReplyService) CreateNested(ctx context.Context, actor Actor, parentID uint, path replytree.Path, content string, attachments []string) (*ReplyView, error) {
	reply, err := s.create(ctx, actor, content, attachments, func(tx *gorm.DB) (*models.Post, *uint, int, error) {
		post, target, err := resolveTarget(tx, parentID, path)
		if err != nil {
			return nil, nil, 0, err
		}
		if err := replytree.CheckDepth(target.Depth, s.maxDepth); err != nil {
			return nil, nil, 0, errors.Wrapf(err, "reply %d is at depth %d", target.ID, target.Depth)
		}
		id := target.ID
		return post, &id, target.Depth + 1, nil
	})
	s.record("create_nested", err)
	return reply, err
}

// placeFunc locates where a new reply goes: its post, parent (nil for top-level) and depth.
type placeFunc func(tx *gorm.DB) (*models.Post, *uint, int, error)

func (s *ReplyService) create(ctx context.Context, actor Actor, content string, attachments []string, place placeFunc) (*ReplyView, error) {
	if err := actor.CanWrite(); err != nil {
		return nil, err
	}
	content = utils.Sanitize(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	var reply models.Reply
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, parentID, depth, err := place(tx)
		if err != nil {
			return err
		}
		if err := postAcceptsReplies(post); err != nil {
			return err
		}
		reply = models.Reply{
			PostID:      post.ID,
			ParentID:    parentID,
			UserID:      actor.UserID,
			Depth:       depth,
			Content:     content,
			Attachments: models.StringList(utils.CleanAttachments(attachments)),
		}
		if err := tx.Create(&reply).Error; err != nil {
			return errors.Wrap(err, "insert reply")
		}
		err = tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("reply_count", gorm.Expr("reply_count + ?", 1)).Error
		return errors.Wrap(err, "bump reply count")
	})
	if err != nil {
		return nil, err
	}
	s.changed(reply.PostID, reply.ID)

	view := newView(reply.ID, reply.PostID, reply.ParentID, reply.UserID, reply.Depth,
		reply.Content, []string(reply.Attachments), reply.CreatedAt)
	if reply.ParentID != nil {
		// position among siblings is only known once the tree is reloaded
		if f, err := loadForest(s.db.WithContext(ctx), reply.PostID); err == nil {
			if n, ok := f.Find(reply.ID); ok {
				view.RootID = replytree.Root(n).ID
				view.Path = replytree.PathOf(n).String()
			}
		}
	}
	var author models.User
	if err := s.db.WithContext(ctx).First(&author, actor.UserID).Error; err == nil {
		pu := author.Public()
		view.setAuthor(&pu)
	}
	return view, nil
}

// Delete removes a reply and its entire subtree. It returns how many replies were removed.
func (s *ReplyService) Delete(ctx context.Context, actor Actor, replyID uint) (int, error) {
	n, err := s.remove(ctx, actor, replyID, nil)
	s.record("delete", err)
	return n, err
}

// DeleteByPath removes the reply reached from parentID by path, with its subtree.
// It acts on exactly the node Delete would given that node's ID.
func (s *ReplyService) DeleteByPath(ctx context.Context, actor Actor, parentID uint, path replytree.Path) (int, error) {
	n, err := s.remove(ctx, actor, parentID, path)
	s.record("delete_path", err)
	return n, err
}

func (s *ReplyService) remove(ctx context.Context, actor Actor, anchorID uint, path replytree.Path) (int, error) {
	if !actor.Authenticated() {
		return 0, ErrUnauthenticated
	}
	if !actor.Active {
		return 0, ErrUserBanned
	}
	var (
		removed []uint
		postID  uint
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, target, err := resolveTarget(tx, anchorID, path)
		if err != nil {
			return err
		}
		if target.UserID != actor.UserID && !actor.OwnsOrAdmin(post.UserID) {
			return ErrForbidden
		}
		removed = replytree.Subtree(target)
		postID = post.ID
		if err := tx.Where("id IN ?", removed).Delete(&models.Reply{}).Error; err != nil {
			return errors.Wrap(err, "delete replies")
		}
		return decrementReplyCount(tx, post.ID, len(removed))
	})
	if err != nil {
		return 0, err
	}
	utils.RepliesRemoved.Add(float64(len(removed)))
	s.changed(postID, removed[0])
	utils.Logger.Info("replies removed",
		zap.Uint("post_id", postID),
		zap.Uint("reply_id", removed[0]),
		zap.Int("count", len(removed)),
		zap.Uint("by", actor.UserID))
	return len(removed), nil
}

func (s *ReplyService) changed(postID, replyID uint) {
	utils.InvalidateByPrefix(utils.RepliesCachePrefix(postID))
	utils.InvalidateByPrefix(utils.CachePrefixPosts)
	s.hub.Publish(utils.LiveEvent{Type: utils.EventRepliesChanged, PostID: postID, ReplyID: replyID})
}

func (s *ReplyService) record(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrDepthExceeded):
		outcome = "depth_exceeded"
	case errors.Is(err, ErrPathOutOfRange), errors.Is(err, ErrReplyNotFound), errors.Is(err, ErrPostNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotVerified), errors.Is(err, ErrUserBanned), errors.Is(err, ErrUnauthenticated):
		outcome = "denied"
	case errors.Is(err, ErrPostArchived), errors.Is(err, ErrPostNotPublished), errors.Is(err, ErrEmptyContent):
		outcome = "rejected"
	default:
		outcome = "error"
		utils.Logger.Error("reply write failed", zap.String("op", op), zap.Error(err))
	}
	utils.ReplyWrites.WithLabelValues(op, outcome).Inc()
}

// CountReplies returns the number of top-level replies and of all replies of a post.
func (s *ReplyService) CountReplies(ctx context.Context, postID uint) (topLevel, all int64, err error) {
	db := s.db.WithContext(ctx).Model(&models.Reply{}).Where("post_id = ?", postID)
	if err = db.Count(&all).Error; err != nil {
		return 0, 0, errors.Wrap(err, "count replies")
	}
	err = s.db.WithContext(ctx).Model(&models.Reply{}).
		Where("post_id = ? AND parent_id IS NULL", postID).Count(&topLevel).Error
	return topLevel, all, errors.Wrap(err, "count top-level replies")
}

func postAcceptsReplies(p *models.Post) error {
	if p.Status != models.PostStatusPublished {
		return ErrPostNotPublished
	}
	if p.IsArchived {
		return ErrPostArchived
	}
	return nil
}

func loadPost(db *gorm.DB, id uint) (*models.Post, error) {
	var post models.Post
	if err := db.First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, errors.Wrap(err, "load post")
	}
	return &post, nil
}

func loadReplyRows(db *gorm.DB, postID uint) ([]replytree.Row, error) {
	var rows []models.Reply
	if err := db.Where("post_id = ?", postID).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load replies")
	}
	out := make([]replytree.Row, len(rows))
	for i, r := range rows {
		out[i] = replytree.Row{
			ID:          r.ID,
			PostID:      r.PostID,
			ParentID:    r.ParentID,
			UserID:      r.UserID,
			Content:     r.Content,
			Attachments: []string(r.Attachments),
			CreatedAt:   r.CreatedAt,
		}
	}
	return out, nil
}

func rowIDs(rows []replytree.Row) []uint {
	ids := make([]uint, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

// loadForest builds a post's tree for reading. Rows cut off from every top-level
// reply are skipped so one bad row cannot hide the rest of the thread.
func loadForest(db *gorm.DB, postID uint) (*replytree.Forest, error) {
	rows, err := loadReplyRows(db, postID)
	if err != nil {
		return nil, err
	}
	kept, orphans := replytree.Prune(rows)
	if len(orphans) > 0 {
		utils.Logger.Warn("detached replies skipped", zap.Uint("post_id", postID), zap.Uints("reply_ids", rowIDs(orphans)))
	}
	f, err := replytree.Build(kept)
	return f, errors.Wrapf(err, "build reply tree of post %d", postID)
}

// lockForest is loadForest for write transactions. Locking the post row first makes
// tree writes on one post take turns, the rows are read with FOR UPDATE so they are
// current under repeatable read, and detached rows are deleted on the way.
func lockForest(tx *gorm.DB, postID uint) (*models.Post, *replytree.Forest, error) {
	post, err := loadPost(tx.Clauses(clause.Locking{Strength: "UPDATE"}), postID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := loadReplyRows(tx.Clauses(clause.Locking{Strength: "UPDATE"}), postID)
	if err != nil {
		return nil, nil, err
	}
	kept, orphans := replytree.Prune(rows)
	if len(orphans) > 0 {
		ids := rowIDs(orphans)
		if err := tx.Where("id IN ?", ids).Delete(&models.Reply{}).Error; err != nil {
			return nil, nil, errors.Wrap(err, "delete detached replies")
		}
		if err := decrementReplyCount(tx, postID, len(ids)); err != nil {
			return nil, nil, err
		}
		utils.Logger.Warn("detached replies deleted", zap.Uint("post_id", postID), zap.Uints("reply_ids", ids))
	}
	f, err := replytree.Build(kept)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "build reply tree of post %d", postID)
	}
	return post, f, nil
}

func decrementReplyCount(tx *gorm.DB, postID uint, n int) error {
	err := tx.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("reply_count", gorm.Expr("CASE WHEN reply_count >= ? THEN reply_count - ? ELSE 0 END", n, n)).Error
	return errors.Wrap(err, "drop reply count")
}

// resolveTarget finds the anchor's post, locks its tree and follows path from the anchor.
// An anchor deleted by a concurrent writer is reported as ErrReplyNotFound.
func resolveTarget(tx *gorm.DB, anchorID uint, path replytree.Path) (*models.Post, *replytree.Node, error) {
	var anchor models.Reply
	if err := tx.Select("id", "post_id").First(&anchor, anchorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrReplyNotFound
		}
		return nil, nil, errors.Wrap(err, "load reply")
	}
	post, forest, err := lockForest(tx, anchor.PostID)
	if err != nil {
		return nil, nil, err
	}
	target, err := forest.ResolvePath(anchor.ID, path)
	if err != nil {
		if errors.Is(err, replytree.ErrNotFound) {
			return nil, nil, ErrReplyNotFound
		}
		return nil, nil, errors.Wrapf(err, "path %q under reply %d", path.String(), anchorID)
	}
	return post, target, nil
}

// attachAuthors fills the author block of every view in the given subtrees.
func attachAuthors(db *gorm.DB, views []*ReplyView) error {
	seen := map[uint]struct{}{}
	var ids []uint
	walkViews(views, func(v *ReplyView) {
		if _, ok := seen[v.UserID]; !ok {
			seen[v.UserID] = struct{}{}
			ids = append(ids, v.UserID)
		}
	})
	if len(ids) == 0 {
		return nil
	}
	var users []models.User
	if err := db.Unscoped().Where("id IN ?", ids).Find(&users).Error; err != nil {
		return errors.Wrap(err, "load reply authors")
	}
	authors := make(map[uint]models.PublicUser, len(users))
	for i := range users {
		authors[users[i].ID] = users[i].Public()
	}
	walkViews(views, func(v *ReplyView) {
		if a, ok := authors[v.UserID]; ok {
			v.setAuthor(&a)
		} else {
			v.setAuthor(nil)
		}
	})
	return nil
}

func walkViews(views []*ReplyView, fn func(*ReplyView)) {
	for _, v := range views {
		fn(v)
		walkViews(v.Replies, fn)
	}
}

func toView(n *replytree.Node, rootID uint) *ReplyView {
	v := newView(n.ID, n.PostID, n.ParentID, n.UserID, n.Depth, n.Content, n.Attachments, n.CreatedAt)
	v.RootID = rootID
	v.Path = replytree.PathOf(n).String()
	v.Replies = make([]*ReplyView, 0, len(n.Children))
	for _, c := range n.Children {
		v.Replies = append(v.Replies, toView(c, rootID))
	}
	return v
}
