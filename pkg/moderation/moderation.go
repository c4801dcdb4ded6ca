// Package moderation coordinates status flips on posts, threads, boards and
// reports. All deletion is soft: a status change plus cache invalidation,
// never row removal, so thread numbering stays stable.
package moderation

import (
	"errors"
	"fmt"

	"anonboard/pkg/cache"
	"anonboard/pkg/logger"
	"anonboard/pkg/models"
	"anonboard/pkg/store"
	"anonboard/pkg/telemetry"
)

// ErrUnauthorized is returned when the caller did not present a valid admin
// credential for an operation that requires one.
var ErrUnauthorized = errors.New("unauthorized")

// ErrBadStatus is returned for a status value the target type does not have.
var ErrBadStatus = errors.New("invalid status")

var (
	postStatuses   = map[string]bool{models.PostActive: true, models.PostDeleted: true}
	threadStatuses = map[string]bool{models.ThreadActive: true, models.ThreadFilled: true, models.ThreadArchived: true, models.ThreadDeleted: true}
	boardStatuses  = map[string]bool{models.BoardActive: true, models.BoardLocked: true}
	reportStatuses = map[string]bool{models.ReportPending: true, models.ReportResolved: true, models.ReportDismissed: true}
)

// Coordinator applies moderation decisions against the store and fans out
// the matching cache invalidations. Every setter is idempotent: applying a
// status the target already holds is a no-op success.
type Coordinator struct {
	store store.Store
	inv   cache.Invalidator
}

func New(s store.Store, inv cache.Invalidator) *Coordinator {
	return &Coordinator{store: s, inv: inv}
}

// SetPostStatus flips a post between active and deleted. The post row is
// kept in place so positional anchors over the thread do not move.
func (c *Coordinator) SetPostStatus(authorized bool, postID, status string) error {
	if !authorized {
		return ErrUnauthorized
	}
	if !postStatuses[status] {
		return fmt.Errorf("%w: %q for post", ErrBadStatus, status)
	}
	p, err := c.store.GetPost(postID)
	if err != nil {
		return err
	}
	if p.Status == status {
		return nil
	}
	p.Status = status
	if err := c.store.UpdatePost(p); err != nil {
		return err
	}
	t, err := c.store.GetThread(p.Thread)
	if err == nil {
		c.invalidateThread(t.Board, t.ID)
	} else {
		c.inv.Invalidate(cache.ThreadTag(p.Thread))
	}
	logger.Info("post_status_set", "post", postID, "status", status)
	return nil
}

// SetThreadStatus moves a thread between lifecycle states. Admin archive and
// delete both pass through here; filled is also accepted so an operator can
// close a thread early.
func (c *Coordinator) SetThreadStatus(authorized bool, threadID, status string) error {
	if !authorized {
		return ErrUnauthorized
	}
	if !threadStatuses[status] {
		return fmt.Errorf("%w: %q for thread", ErrBadStatus, status)
	}
	t, err := c.store.GetThread(threadID)
	if err != nil {
		return err
	}
	if t.Status == status {
		return nil
	}
	t.Status = status
	if err := c.store.SaveThread(t); err != nil {
		return err
	}
	c.invalidateThread(t.Board, t.ID)
	logger.Info("thread_status_set", "thread", threadID, "status", status)
	return nil
}

// SetBoardStatus locks or unlocks a board. Locked boards stay readable but
// reject thread and post creation at the service layer.
func (c *Coordinator) SetBoardStatus(authorized bool, boardID, status string) error {
	if !authorized {
		return ErrUnauthorized
	}
	if !boardStatuses[status] {
		return fmt.Errorf("%w: %q for board", ErrBadStatus, status)
	}
	b, err := c.store.GetBoard(boardID)
	if err != nil {
		return err
	}
	if b.Status == status {
		return nil
	}
	b.Status = status
	if err := c.store.SaveBoard(b); err != nil {
		return err
	}
	c.inv.Invalidate(cache.BoardTag(boardID))
	c.inv.Invalidate(cache.AllThreadsTag)
	telemetry.CacheInvalidations.Add(2)
	logger.Info("board_status_set", "board", boardID, "status", status)
	return nil
}

// SetReportStatus resolves or dismisses a report. Reports reference posts by
// id only; resolving one never touches the post itself.
func (c *Coordinator) SetReportStatus(authorized bool, reportID, status string) error {
	if !authorized {
		return ErrUnauthorized
	}
	if !reportStatuses[status] {
		return fmt.Errorf("%w: %q for report", ErrBadStatus, status)
	}
	r, err := c.store.GetReport(reportID)
	if err != nil {
		return err
	}
	if r.Status == status {
		return nil
	}
	r.Status = status
	if err := c.store.SaveReport(r); err != nil {
		return err
	}
	logger.Info("report_status_set", "report", reportID, "status", status)
	return nil
}

func (c *Coordinator) invalidateThread(boardID, threadID string) {
	c.inv.Invalidate(cache.BoardTag(boardID))
	c.inv.Invalidate(cache.AllThreadsTag)
	c.inv.Invalidate(cache.ThreadTag(threadID))
	telemetry.CacheInvalidations.Add(3)
}
