// Package seed populates a development database with realistic
// conversations, memberships, and threads.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"parley/internal/models"
	"parley/internal/repository"
	"parley/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumRooms    int
	ShouldClean bool
}

// Run seeds the database through the service layer so every row satisfies
// the same invariants production writes do.
func Run(db *gorm.DB, opts Options) error {
	if opts.NumUsers <= 1 {
		opts.NumUsers = 25
	}
	if opts.NumRooms <= 0 {
		opts.NumRooms = 10
	}

	if opts.ShouldClean {
		if err := clean(db); err != nil {
			return fmt.Errorf("clean existing data: %w", err)
		}
	}

	convRepo := repository.NewConversationRepository(db)
	memberRepo := repository.NewMembershipRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	rooms := service.NewRoomService(convRepo, memberRepo)
	resolver := service.NewResolverService(convRepo)
	threads := service.NewThreadService(convRepo, memberRepo, threadRepo)
	activity := service.NewActivityService(convRepo)

	ctx := context.Background()
	userIDs := make([]uint, opts.NumUsers)
	for i := range userIDs {
		userIDs[i] = uint(i + 1)
	}

	for i := 0; i < opts.NumRooms; i++ {
		creator := userIDs[rand.Intn(len(userIDs))]
		members := pickMembers(userIDs, creator, 2+rand.Intn(8))

		kind := models.KindGroup
		if rand.Intn(4) == 0 {
			kind = models.KindChannel
		}
		conv, err := rooms.CreateRoom(ctx, service.CreateRoomInput{
			CreatorID:   creator,
			Kind:        kind,
			Title:       gofakeit.BookTitle(),
			Description: gofakeit.Sentence(8),
			MemberIDs:   members,
		})
		if err != nil {
			return fmt.Errorf("seed room %d: %w", i, err)
		}

		// A few rooms get a thread hanging off a fake message.
		if rand.Intn(2) == 0 {
			_, _, err := threads.CreateThread(ctx, service.CreateThreadInput{
				ParentConversationID: conv.ID,
				ParentMessageKey:     gofakeit.UUID(),
				CreatorID:            creator,
				Title:                gofakeit.HipsterSentence(3),
			})
			if err != nil {
				return fmt.Errorf("seed thread for room %d: %w", i, err)
			}
		}

		occurredAt := time.Now().Add(-time.Duration(rand.Intn(72)) * time.Hour)
		if _, err := activity.ApplyActivity(ctx, conv.ID, occurredAt, gofakeit.Sentence(5)); err != nil {
			return fmt.Errorf("seed activity for room %d: %w", i, err)
		}
	}

	// Direct conversations between random pairs.
	for i := 0; i < opts.NumUsers/2; i++ {
		a := userIDs[rand.Intn(len(userIDs))]
		b := userIDs[rand.Intn(len(userIDs))]
		if a == b {
			continue
		}
		if _, _, err := resolver.ResolveDirect(ctx, a, b); err != nil {
			return fmt.Errorf("seed direct %d<->%d: %w", a, b, err)
		}
	}

	log.Printf("Seeded %d rooms across %d users", opts.NumRooms, opts.NumUsers)
	return nil
}

// pickMembers returns up to n distinct user IDs excluding the creator.
func pickMembers(userIDs []uint, creator uint, n int) []uint {
	shuffled := make([]uint, len(userIDs))
	copy(shuffled, userIDs)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	out := make([]uint, 0, n)
	for _, id := range shuffled {
		if id == creator {
			continue
		}
		out = append(out, id)
		if len(out) == n {
			break
		}
	}
	return out
}

func clean(db *gorm.DB) error {
	// Children first to satisfy foreign keys.
	for _, table := range []string{"thread_links", "memberships", "conversation_settings", "conversations"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}
