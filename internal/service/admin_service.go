package service

import (
	"context"
	"fmt"
	"strings"

	"collectibles-market/internal/models"
	"collectibles-market/internal/store"
	"collectibles-market/internal/util"

	"go.uber.org/zap"
)

// AdminStore is the persistence surface moderation needs
type AdminStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SetUserFrozen(ctx context.Context, userID int64, frozen bool) error
	GetItemByID(ctx context.Context, id int64) (*models.Item, error)
	UpdateItemStatus(ctx context.Context, itemID int64, status string) error
	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, entityType string, limit, offset int) ([]models.AuditLog, error)
	CreateFraudReport(ctx context.Context, report *models.FraudReport) error
	GetFraudReport(ctx context.Context, id int64) (*models.FraudReport, error)
	ResolveFraudReport(ctx context.Context, id int64, status string, resolvedBy int64, notes string) error
	ListFraudReports(ctx context.Context, status string, limit, offset int) ([]models.FraudReport, error)
	GetDashboardStats(ctx context.Context) (*store.DashboardStats, error)
}

// AdminService covers moderation: listing approval, account freezing, fraud
// report resolution and the audit trail behind all of it. Every action that
// changes another user's state writes an audit record and notifies the
// affected user.
type AdminService struct {
	store         AdminStore
	notifications *NotificationService
	logger        *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(store AdminStore, notifications *NotificationService) *AdminService {
	return &AdminService{
		store:         store,
		notifications: notifications,
		logger:        util.GetLogger(),
	}
}

func (s *AdminService) audit(ctx context.Context, adminID int64, action, entityType string, entityID int64, details string) {
	entry := &models.AuditLog{
		AdminID:    adminID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	if err := s.store.InsertAuditLog(ctx, entry); err != nil {
		s.logger.Error("Failed to write audit log",
			zap.String("action", action), zap.Error(err))
	}
}

func (s *AdminService) notifyUser(ctx context.Context, userID int64, title, message string) {
	n := &models.Notification{
		UserID:  userID,
		Kind:    models.NotificationKindModeration,
		Title:   title,
		Message: message,
	}
	if err := s.notifications.Notify(ctx, n); err != nil {
		s.logger.Error("Failed to notify user of moderation action",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

// FreezeUser blocks an account from bidding and buying
func (s *AdminService) FreezeUser(ctx context.Context, adminID int64, actorRole string, userID int64, reason string) error {
	if actorRole != models.RoleModerator {
		return ErrNotModerator
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return err
	}
	if err := s.store.SetUserFrozen(ctx, userID, true); err != nil {
		return fmt.Errorf("failed to freeze user: %w", err)
	}

	s.audit(ctx, adminID, "FREEZE_USER", "user", userID, reason)
	s.notifyUser(ctx, userID, "Account frozen", "Your account has been frozen: "+reason)
	s.logger.Info("User frozen", zap.Int64("user_id", userID), zap.Int64("admin_id", adminID))
	return nil
}

// UnfreezeUser restores a frozen account
func (s *AdminService) UnfreezeUser(ctx context.Context, adminID int64, actorRole string, userID int64) error {
	if actorRole != models.RoleModerator {
		return ErrNotModerator
	}
	if err := s.store.SetUserFrozen(ctx, userID, false); err != nil {
		return fmt.Errorf("failed to unfreeze user: %w", err)
	}

	s.audit(ctx, adminID, "UNFREEZE_USER", "user", userID, "")
	s.notifyUser(ctx, userID, "Account restored", "Your account has been restored.")
	return nil
}

// ApproveItem moves a pending listing to ACTIVE
func (s *AdminService) ApproveItem(ctx context.Context, adminID int64, actorRole string, itemID int64) error {
	return s.reviewItem(ctx, adminID, actorRole, itemID, models.ItemStatusActive, "")
}

// RejectItem declines a pending listing
func (s *AdminService) RejectItem(ctx context.Context, adminID int64, actorRole string, itemID int64, reason string) error {
	return s.reviewItem(ctx, adminID, actorRole, itemID, models.ItemStatusRejected, reason)
}

func (s *AdminService) reviewItem(ctx context.Context, adminID int64, actorRole string, itemID int64, decision, reason string) error {
	if actorRole != models.RoleModerator {
		return ErrNotModerator
	}
	item, err := s.store.GetItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status != models.ItemStatusPendingApproval {
		return fmt.Errorf("item %d is not awaiting review (status %s)", itemID, item.Status)
	}
	if err := s.store.UpdateItemStatus(ctx, itemID, decision); err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	if decision == models.ItemStatusActive {
		s.audit(ctx, adminID, "APPROVE_ITEM", "item", itemID, "")
		s.notifyUser(ctx, item.SellerID, "Listing approved",
			fmt.Sprintf("Your listing %q has been approved.", item.Title))
	} else {
		s.audit(ctx, adminID, "REJECT_ITEM", "item", itemID, reason)
		s.notifyUser(ctx, item.SellerID, "Listing rejected",
			fmt.Sprintf("Your listing %q was rejected: %s", item.Title, reason))
	}
	return nil
}

// FileFraudReport lets any user report another account
func (s *AdminService) FileFraudReport(ctx context.Context, reporterID, reportedUserID int64, description string) (*models.FraudReport, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("fraud report requires a description")
	}
	if _, err := s.store.GetUserByID(ctx, reportedUserID); err != nil {
		return nil, err
	}

	report := &models.FraudReport{
		ReportedBy:     reporterID,
		ReportedUserID: reportedUserID,
		Description:    description,
		Status:         models.FraudReportPending,
	}
	if err := s.store.CreateFraudReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to file fraud report: %w", err)
	}
	return report, nil
}

// ResolveFraudReport records a moderator's decision. Confirming a report
// also freezes the reported account.
func (s *AdminService) ResolveFraudReport(ctx context.Context, adminID int64, actorRole string, reportID int64, confirm bool, notes string) error {
	if actorRole != models.RoleModerator {
		return ErrNotModerator
	}
	report, err := s.store.GetFraudReport(ctx, reportID)
	if err != nil {
		return err
	}
	if report.Status != models.FraudReportPending {
		return fmt.Errorf("fraud report %d already resolved", reportID)
	}

	status := models.FraudReportDismissed
	if confirm {
		status = models.FraudReportConfirmed
	}
	if err := s.store.ResolveFraudReport(ctx, reportID, status, adminID, notes); err != nil {
		return fmt.Errorf("failed to resolve fraud report: %w", err)
	}
	s.audit(ctx, adminID, "RESOLVE_FRAUD_REPORT", "fraud_report", reportID, status)

	if confirm {
		if err := s.FreezeUser(ctx, adminID, actorRole, report.ReportedUserID, "confirmed fraud report"); err != nil {
			s.logger.Error("Failed to freeze user after confirmed report",
				zap.Int64("user_id", report.ReportedUserID), zap.Error(err))
		}
	}
	return nil
}

// AuditLogs returns moderation history, optionally filtered by entity type
func (s *AdminService) AuditLogs(ctx context.Context, actorRole, entityType string, limit, offset int) ([]models.AuditLog, error) {
	if actorRole != models.RoleModerator {
		return nil, ErrNotModerator
	}
	return s.store.ListAuditLogs(ctx, entityType, limit, offset)
}

// FraudReports returns filed reports, optionally filtered by status
func (s *AdminService) FraudReports(ctx context.Context, actorRole, status string, limit, offset int) ([]models.FraudReport, error) {
	if actorRole != models.RoleModerator {
		return nil, ErrNotModerator
	}
	return s.store.ListFraudReports(ctx, status, limit, offset)
}

// DashboardStats returns the moderation dashboard counters
func (s *AdminService) DashboardStats(ctx context.Context, actorRole string) (*store.DashboardStats, error) {
	if actorRole != models.RoleModerator {
		return nil, ErrNotModerator
	}
	return s.store.GetDashboardStats(ctx)
}
