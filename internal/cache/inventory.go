package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix        = "user:%d"
	FeedKeyPrefix        = "feed:%d:v%d:%d:%d"
	FeedVersionKeyPrefix = "feed:%d:version"
)

const (
	UserTTL = 5 * time.Minute
	// FeedTTL bounds how long a followee's new pulse can be missing from a cached feed.
	FeedTTL = 30 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

// FeedKey addresses one page of a user's feed at a given feed version.
func FeedKey(userID uint, version int64, limit, offset int) string {
	return fmt.Sprintf(FeedKeyPrefix, userID, version, limit, offset)
}

func FeedVersionKey(userID uint) string {
	return fmt.Sprintf(FeedVersionKeyPrefix, userID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

// FeedVersion returns the current feed version of userID, 0 when unset or uncached.
func FeedVersion(ctx context.Context, userID uint) int64 {
	if client == nil {
		return 0
	}
	v, err := client.Get(ctx, FeedVersionKey(userID)).Int64()
	if err != nil {
		return 0
	}
	return v
}

// BumpFeedVersion orphans every cached page of the given users' feeds.
func BumpFeedVersion(ctx context.Context, userIDs ...uint) {
	if client == nil {
		return
	}
	for _, id := range userIDs {
		client.Incr(ctx, FeedVersionKey(id))
	}
}
