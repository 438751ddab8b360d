package stores

import (
	"errors"
	"sync"
	"testing"
	"time"

	ag "github.com/trainlog/authgate"
)

func TestTokenRedeem(t *testing.T) {
	store := NewFSTokenStore(t.TempDir())

	token, err := store.CreateToken("user-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if token.Token == "" {
		t.Fatal("empty token value")
	}

	userID, err := store.RedeemToken(token.Token)
	if err != nil {
		t.Fatal(err)
	}
	if userID != "user-1" {
		t.Fatalf("redeemed for %q, want user-1", userID)
	}

	// single use
	if _, err := store.RedeemToken(token.Token); !errors.Is(err, ag.ErrTokenConsumed) {
		t.Fatalf("err = %v, want ErrTokenConsumed", err)
	}
}

func TestTokenRedeemFailures(t *testing.T) {
	store := NewFSTokenStore(t.TempDir())

	if _, err := store.RedeemToken("nope"); !errors.Is(err, ag.ErrTokenNotFound) {
		t.Fatalf("err = %v, want ErrTokenNotFound", err)
	}

	expired, err := store.CreateToken("user-2", "b@example.com", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.RedeemToken(expired.Token); !errors.Is(err, ag.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	// an expired token stays redeemable-never, not consumed
	if _, err := store.RedeemToken(expired.Token); !errors.Is(err, ag.ErrTokenExpired) {
		t.Fatalf("second redeem err = %v, want ErrTokenExpired", err)
	}
}

func TestTokenConcurrentRedeem(t *testing.T) {
	store := NewFSTokenStore(t.TempDir())

	token, err := store.CreateToken("user-3", "c@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	const redeemers = 16
	errs := make(chan error, redeemers)
	var wg sync.WaitGroup
	for range redeemers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RedeemToken(token.Token)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	winners := 0
	for err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ag.ErrTokenConsumed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("%d redeems succeeded, want exactly 1", winners)
	}
}

func TestTokensAreIndependent(t *testing.T) {
	store := NewFSTokenStore(t.TempDir())

	first, err := store.CreateToken("user-4", "d@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.CreateToken("user-4", "d@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if first.Token == second.Token {
		t.Fatal("two tokens share a value")
	}

	// consuming one leaves the other valid
	if _, err := store.RedeemToken(first.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RedeemToken(second.Token); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteUserTokens(t *testing.T) {
	store := NewFSTokenStore(t.TempDir())

	mine, err := store.CreateToken("user-5", "e@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	other, err := store.CreateToken("user-6", "f@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteUserTokens("user-5"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RedeemToken(mine.Token); !errors.Is(err, ag.ErrTokenNotFound) {
		t.Fatalf("err = %v, want ErrTokenNotFound", err)
	}
	if _, err := store.RedeemToken(other.Token); err != nil {
		t.Fatalf("other user's token was deleted: %v", err)
	}

	// empty store is fine
	if err := store.DeleteUserTokens("nobody"); err != nil {
		t.Fatal(err)
	}
}
