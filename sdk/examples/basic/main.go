package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pubflow/pubflow-go/sdk"
)

// Post is a bridge record of the "posts" resource.
type Post struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Draft bool   `json:"draft"`
}

func main() {
	// Run `go run ./cmd/pubflow-mock` first, or point this at a real backend.
	config := sdk.DefaultConfig().
		WithBaseURL("http://localhost:8080").
		WithTimeout(10 * time.Second)

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	fmt.Printf("Running on the %s runtime\n", client.Runtime())

	// Example 1: Log in
	fmt.Println("\n--- Example 1: Login ---")
	session, err := client.Auth().Login(ctx, sdk.Credentials{
		Email:    "admin@pubflow.local",
		Password: "pubflow",
	})
	if err != nil {
		if sdk.IsAuthError(err) {
			log.Fatalf("Credentials rejected: %v", err)
		}
		log.Fatalf("Login failed: %v", err)
	}
	expires := "never"
	if t, ok := session.Expiry(); ok {
		expires = t.Format(time.RFC822)
	}
	fmt.Printf("✓ Logged in as %s (%s), session expires %s\n",
		session.User.Name, session.User.UserType, expires)
	fmt.Printf("✓ Admin: %v\n", client.Auth().HasUserType(ctx, "admin"))

	// Example 2: Create records
	fmt.Println("\n--- Example 2: Create ---")
	posts := sdk.NewResource[Post](client.Bridge(), "posts", sdk.WithPageSize(2))
	for _, title := range []string{"Hello PubFlow", "Second post", "Third post"} {
		p, err := posts.Create(ctx, Post{Title: title, Draft: true})
		if err != nil {
			log.Fatalf("Failed to create post: %v", err)
		}
		fmt.Printf("✓ Created %s: %q\n", p.ID, p.Title)
	}

	// Example 3: Paginate
	fmt.Println("\n--- Example 3: Pagination ---")
	page, err := posts.Query(ctx, 1)
	if err != nil {
		log.Fatalf("Failed to list posts: %v", err)
	}
	fmt.Printf("✓ Page 1 has %d posts, more: %v\n", len(page), posts.HasMore())
	for posts.HasMore() {
		if _, err := posts.LoadMore(ctx); err != nil {
			log.Fatalf("Failed to load more posts: %v", err)
		}
	}
	fmt.Printf("✓ Loaded %d posts in total\n", len(posts.Items()))

	// Example 4: Search
	fmt.Println("\n--- Example 4: Search ---")
	found, err := posts.Search(ctx, "second")
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	for _, p := range found {
		fmt.Printf("✓ Found %s: %q\n", p.ID, p.Title)
	}

	// Example 5: Update and delete
	fmt.Println("\n--- Example 5: Update and delete ---")
	if len(found) > 0 {
		updated, err := posts.Update(ctx, found[0].ID, map[string]any{"draft": false})
		if err != nil {
			log.Fatalf("Update failed: %v", err)
		}
		fmt.Printf("✓ Published %s (draft=%v)\n", updated.ID, updated.Draft)

		if err := posts.Delete(ctx, updated.ID); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
		fmt.Printf("✓ Deleted %s\n", updated.ID)
	}

	// Example 6: Errors
	fmt.Println("\n--- Example 6: Error handling ---")
	_, err = client.Bridge().Delete(ctx, "posts", "does-not-exist")
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) {
		fmt.Printf("✓ Expected error: type=%s status=%d message=%q\n", sdkErr.Type, sdkErr.Status, sdkErr.Message)
	}

	// Example 7: Logout
	fmt.Println("\n--- Example 7: Logout ---")
	if err := client.Auth().Logout(ctx); err != nil {
		log.Fatalf("Logout failed: %v", err)
	}
	fmt.Printf("✓ Authenticated after logout: %v\n", client.Auth().IsAuthenticated(ctx))

	fmt.Println("\nAll examples completed!")
}
