// Package blogtest provides a small blog domain used by the engine tests.
package blogtest

import (
	"github.com/dashing-go/dashing/metadata"
	"github.com/dashing-go/dashing/tracking"
)

type User struct {
	tracking.State
	ID    int64   `db:"id,pk"`
	Name  string  `db:"name"`
	Posts []*Post `rel:",fk=author_id"`
}

type Blog struct {
	tracking.State
	ID       int64      `db:"id,pk"`
	Title    string     `db:"title"`
	Author   *User      `rel:",fk=author_id"`
	Posts    []*Post    `rel:",fk=blog_id"`
	Comments []*Comment `rel:",fk=blog_id"`
}

// SetTitle changes the title, recording the change when tracked.
func (b *Blog) SetTitle(title string) {
	b.Title = title
	b.MarkDirty("Title")
}

type Post struct {
	tracking.State
	ID       int64      `db:"id,pk"`
	Title    string     `db:"title"`
	Author   *User      `rel:",fk=author_id"`
	Comments []*Comment `rel:",fk=post_id"`
	Tags     []*Tag     `rel:",fk=post_id"`
}

type Comment struct {
	ID   int64  `db:"id,pk"`
	Body string `db:"body"`
}

type Tag struct {
	ID    int64  `db:"id,pk"`
	Label string `db:"label"`
}

// Settings has no primary key.
type Settings struct {
	Theme string `db:"theme"`
}

// Configuration returns the blog domain configuration.
func Configuration() *metadata.Configuration {
	return metadata.MustConfiguration(
		metadata.MustFor[Blog]("blogs"),
		metadata.MustFor[User]("users"),
		metadata.MustFor[Post]("posts"),
		metadata.MustFor[Comment]("comments"),
		metadata.MustFor[Tag]("tags"),
		metadata.MustFor[Settings]("settings"),
	)
}
