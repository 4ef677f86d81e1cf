package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dan9191/contract-service/internal/config"
	"github.com/Dan9191/contract-service/internal/middleware"
	"github.com/Dan9191/contract-service/internal/models"
	"github.com/Dan9191/contract-service/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidInput            = errors.New("invalid input")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Store is the persistence the service needs
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) error
	LoadContract(ctx context.Context, id int64) (*models.Contract, error)
	FindPaymentSchedule(ctx context.Context, id int64) (*models.PaymentSchedule, int64, error)
	UpdatePaymentStatus(ctx context.Context, id int64, next models.PaymentStatus) error
}

// Service handles business logic
type Service struct {
	repo   Store
	log    *logrus.Logger
	config *config.Config
}

// NewService initializes a new service
func NewService(repo Store, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{repo: repo, log: log, config: cfg}
}

// Register creates a new user with hashed password
func (s *Service) Register(ctx context.Context, username, email, fullName, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || !strings.Contains(email, "@") || len(password) < 6 {
		return nil, fmt.Errorf("%w: username, valid email and a password of at least 6 characters are required", ErrInvalidInput)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: string(hashedPassword),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.FindUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := middleware.GenerateToken(user.ID, s.config.JWTSecret, tokenTTL)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return token, nil
}

// User returns the user by id
func (s *Service) User(ctx context.Context, userID int64) (*models.User, error) {
	return s.repo.FindUserByID(ctx, userID)
}

// Notifications returns a page of the user's notifications, newest first
func (s *Service) Notifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListNotifications(ctx, userID, limit, offset)
}

// MarkNotificationRead marks one of the user's notifications as read
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	return s.repo.MarkNotificationRead(ctx, notificationID, userID)
}

// Contract returns the contract aggregate if userID owns it
func (s *Service) Contract(ctx context.Context, userID, contractID int64) (*models.Contract, error) {
	contract, err := s.repo.LoadContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.OwnerID != userID {
		return nil, fmt.Errorf("contract %d: %w", contractID, ErrForbidden)
	}
	return contract, nil
}

// RecordPayment marks an installment of one of the user's contracts as paid
func (s *Service) RecordPayment(ctx context.Context, userID, scheduleID int64) error {
	schedule, contractID, err := s.repo.FindPaymentSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if _, err := s.Contract(ctx, userID, contractID); err != nil {
		return err
	}
	if !schedule.Status.CanTransitionTo(models.PaymentPaid) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, schedule.Status, models.PaymentPaid)
	}

	if err := s.repo.UpdatePaymentStatus(ctx, scheduleID, models.PaymentPaid); err != nil {
		if errors.Is(err, repository.ErrStatusTransition) {
			return fmt.Errorf("%w: %v", ErrInvalidStatusTransition, err)
		}
		return err
	}

	s.log.WithFields(logrus.Fields{
		"user_id":             userID,
		"contract_id":         contractID,
		"payment_schedule_id": scheduleID,
	}).Info("Payment recorded")
	return nil
}
