package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetchat/internal/domain/entity"
	"fleetchat/internal/domain/repository"
	"fleetchat/internal/domain/service"
	"fleetchat/internal/infrastructure/presence"
	"fleetchat/pkg/errors"
)

// LifecycleUseCase binds connections to identities, keeps presence in sync
// with the store, and converges the one-conversation-per-pair invariant.
type LifecycleUseCase struct {
	userRepo    repository.UserRepository
	convRepo    repository.ConversationRepository
	registry    *presence.Registry
	broadcaster Broadcaster
	dispatcher  service.NotificationDispatcher
	directory   *DirectoryUseCase

	// pairMu serializes conversation creation per (customer, admin) pair so
	// concurrent verifies for the same new customer converge on one row.
	pairMu   sync.Mutex
	pairLock map[string]*sync.Mutex
}

func NewLifecycleUseCase(
	userRepo repository.UserRepository,
	convRepo repository.ConversationRepository,
	registry *presence.Registry,
	broadcaster Broadcaster,
	dispatcher service.NotificationDispatcher,
	directory *DirectoryUseCase,
) *LifecycleUseCase {
	return &LifecycleUseCase{
		userRepo:    userRepo,
		convRepo:    convRepo,
		registry:    registry,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		directory:   directory,
		pairLock:    make(map[string]*sync.Mutex),
	}
}

type RegisterInput struct {
	Username string `json:"username" validate:"required"`
	Name     string `json:"name"`
	Phone    string `json:"phone" validate:"required"`
}

// VerifyCustomer authenticates a customer socket by user id plus phone and
// transitions the connection to Authenticated.
func (uc *LifecycleUseCase) VerifyCustomer(ctx context.Context, connID, userID, phone string) (*entity.User, *DirectoryPage, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, errors.NotFound("User", err)
	}
	if user.Phone != phone || user.Role != entity.RoleCustomer {
		return nil, nil, errors.NotFound("User", nil)
	}

	if err := uc.ensurePairConversation(ctx, user); err != nil {
		return nil, nil, err
	}
	return uc.authenticated(ctx, connID, user)
}

// VerifyAdmin authenticates an admin dashboard socket by username+password.
func (uc *LifecycleUseCase) VerifyAdmin(ctx context.Context, connID, username, password string) (*entity.User, *DirectoryPage, error) {
	user, err := uc.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, errors.NotFound("Admin", err)
	}
	if user.Role != entity.RoleAdmin || user.Password != password {
		return nil, nil, errors.NotFound("Admin", nil)
	}
	return uc.authenticated(ctx, connID, user)
}

// Register creates a new customer identity, its conversation with the admin
// side, and authenticates the connection.
func (uc *LifecycleUseCase) Register(ctx context.Context, connID string, input RegisterInput) (*entity.User, *DirectoryPage, error) {
	// Checked here because the socket path bypasses the HTTP validator.
	if input.Username == "" || input.Phone == "" {
		return nil, nil, errors.Validation("Username and phone are required", nil)
	}
	if existing, err := uc.userRepo.GetByPhone(ctx, input.Phone); err == nil && existing != nil {
		return nil, nil, errors.Conflict("Phone number already registered")
	}

	now := time.Now()
	user := &entity.User{
		ID:        uuid.New().String(),
		Username:  input.Username,
		Name:      input.Name,
		Phone:     input.Phone,
		Role:      entity.RoleCustomer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.userRepo.Create(ctx, user); err != nil {
		log.Printf("Register Error: %v", err)
		return nil, nil, errors.StoreUnavailable("Failed to create user", err)
	}

	if err := uc.ensurePairConversation(ctx, user); err != nil {
		return nil, nil, err
	}
	uc.notifyAdminNewCustomer(ctx, user)
	return uc.authenticated(ctx, connID, user)
}

// Disconnect unbinds the connection. The identity goes offline only when its
// last connection drops.
func (uc *LifecycleUseCase) Disconnect(ctx context.Context, connID string) {
	userID, stillOnline := uc.registry.Unbind(connID)
	if userID == "" {
		return
	}
	if !stillOnline {
		if err := uc.userRepo.SetPresence(ctx, userID, false); err != nil {
			log.Printf("Disconnect Error: %v", err)
		}
	}
	uc.BroadcastOnlineUsers(ctx)
}

// RefreshPushToken stores a fresh device token for userID.
func (uc *LifecycleUseCase) RefreshPushToken(ctx context.Context, userID, token string) error {
	if token == "" {
		return errors.Validation("Push token is required", nil)
	}
	if _, err := uc.userRepo.GetByID(ctx, userID); err != nil {
		return errors.NotFound("User", err)
	}
	if err := uc.userRepo.SetPushToken(ctx, userID, token); err != nil {
		log.Printf("RefreshPushToken Error: %v", err)
		return errors.StoreUnavailable("Failed to store push token", err)
	}
	return nil
}

// BroadcastOnlineUsers pushes the current online identity list to every
// live connection.
func (uc *LifecycleUseCase) BroadcastOnlineUsers(ctx context.Context) {
	online := uc.registry.Online()
	users := make([]map[string]interface{}, 0, len(online))
	for _, userID := range online {
		user, err := uc.userRepo.GetByID(ctx, userID)
		if err != nil {
			continue
		}
		users = append(users, map[string]interface{}{
			"id":   user.ID,
			"name": user.DisplayName(),
			"role": user.Role,
		})
	}
	if frame := event("online_users_update", map[string]interface{}{
		"users": users,
		"count": len(users),
	}); frame != nil {
		uc.broadcaster.Broadcast(frame)
	}
}

func (uc *LifecycleUseCase) authenticated(ctx context.Context, connID string, user *entity.User) (*entity.User, *DirectoryPage, error) {
	uc.registry.Bind(connID, user.ID)
	if err := uc.userRepo.SetPresence(ctx, user.ID, true); err != nil {
		log.Printf("Verify Error: %v", err)
	}
	uc.BroadcastOnlineUsers(ctx)

	page, err := uc.directory.ListFor(ctx, user.ID, 1, 0)
	if err != nil {
		log.Printf("Verify Error: %v", err)
		page = &DirectoryPage{Items: []*ConversationView{}}
	}
	return user, page, nil
}

// ensurePairConversation finds or creates the customer's conversation with
// the well-known admin. Serialized per pair.
func (uc *LifecycleUseCase) ensurePairConversation(ctx context.Context, customer *entity.User) error {
	admin, err := uc.wellKnownAdmin(ctx)
	if err != nil || admin == nil {
		return nil // no admin provisioned yet; conversation appears on first contact
	}

	lock := uc.lockForPair(customer.ID + ":" + admin.ID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := uc.convRepo.GetByPair(ctx, customer.ID, admin.ID); err == nil {
		return nil
	} else if !errors.Is(err, "NOT_FOUND") {
		return errors.StoreUnavailable("Failed to look up conversation", err)
	}

	now := time.Now()
	conv := &entity.Conversation{
		ID:            uuid.New().String(),
		Type:          entity.ConversationTypeIndividual,
		CustomerID:    customer.ID,
		AdminID:       admin.ID,
		CustomerName:  customer.DisplayName(),
		CustomerPhone: customer.Phone,
		UnreadCount:   make(map[string]int),
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.convRepo.Create(ctx, conv); err != nil {
		log.Printf("EnsureConversation Error: %v", err)
		return errors.StoreUnavailable("Failed to create conversation", err)
	}
	return nil
}

func (uc *LifecycleUseCase) lockForPair(key string) *sync.Mutex {
	uc.pairMu.Lock()
	defer uc.pairMu.Unlock()
	lock, ok := uc.pairLock[key]
	if !ok {
		lock = &sync.Mutex{}
		uc.pairLock[key] = lock
	}
	return lock
}

func (uc *LifecycleUseCase) wellKnownAdmin(ctx context.Context) (*entity.User, error) {
	admins, err := uc.userRepo.ListByRole(ctx, entity.RoleAdmin)
	if err != nil {
		log.Printf("LookupAdmin Error: %v", err)
		return nil, err
	}
	if len(admins) == 0 {
		return nil, nil
	}
	return admins[0], nil
}

func (uc *LifecycleUseCase) notifyAdminNewCustomer(ctx context.Context, customer *entity.User) {
	admin, err := uc.wellKnownAdmin(ctx)
	if err != nil || admin == nil {
		return
	}
	if frame := event("new_customer", map[string]interface{}{
		"id":    customer.ID,
		"name":  customer.DisplayName(),
		"phone": customer.Phone,
	}); frame != nil {
		uc.broadcaster.SendToUser(admin.ID, frame)
	}
	if _, err := uc.dispatcher.Dispatch(ctx, admin, &service.Notification{
		Title: "New customer",
		Body:  customer.DisplayName() + " just joined",
		Data:  map[string]string{"type": "new_customer", "customerId": customer.ID},
	}); err != nil {
		log.Printf("NotifyNewCustomer Error: %v", err)
	}
}
