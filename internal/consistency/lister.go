package consistency

import (
	"context"
	"strings"

	"spatial-hub-go/pkg/log"
	"spatial-hub-go/pkg/storage"
)

// Listing 是一次完整遍历的结果。
type Listing struct {
	Paths   []string
	Skipped []PartialListError
}

// Partial 表示是否有子目录被跳过。
func (l *Listing) Partial() bool {
	return len(l.Skipped) > 0
}

// SkippedPrefixes 返回被跳过的子目录前缀。
func (l *Listing) SkippedPrefixes() []string {
	if len(l.Skipped) == 0 {
		return nil
	}
	prefixes := make([]string, 0, len(l.Skipped))
	for _, s := range l.Skipped {
		prefixes = append(prefixes, s.Prefix)
	}
	return prefixes
}

// ObjectLister 以显式栈的方式遍历对象存储的目录树，产出扁平的对象路径列表。
type ObjectLister struct {
	store ObjectStore
	root  string
}

// NewObjectLister 创建一个从 root 开始遍历的 ObjectLister，root 为空表示存储桶根目录。
func NewObjectLister(store ObjectStore, root string) *ObjectLister {
	return &ObjectLister{store: store, root: strings.Trim(root, "/")}
}

// ListAll 列出 root 下的所有对象。
//
// 根目录列举失败返回 *ListError；子目录列举失败只记录到 Listing.Skipped 并继续。
// 被跳过的分支里的对象不会出现在结果中，因此引用它们的元数据记录可能被误判为孤立记录，
// 报告会因此标记为 Partial。
func (l *ObjectLister) ListAll(ctx context.Context) (*Listing, error) {
	entries, err := l.store.List(ctx, l.root)
	if err != nil {
		return nil, &ListError{Prefix: l.root, Err: err}
	}

	listing := &Listing{Paths: []string{}}
	seenObjects := make(map[string]struct{})
	seenFolders := map[string]struct{}{l.root: {}}
	var stack []string

	collect := func(parent string, entries []storage.Entry) {
		for _, entry := range entries {
			full := joinPath(parent, entry.Name)
			if entry.IsFolder {
				if _, ok := seenFolders[full]; ok {
					continue
				}
				seenFolders[full] = struct{}{}
				stack = append(stack, full)
				continue
			}
			if _, ok := seenObjects[full]; ok {
				continue
			}
			seenObjects[full] = struct{}{}
			listing.Paths = append(listing.Paths, full)
		}
	}

	collect(l.root, entries)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, &ListError{Prefix: l.root, Err: err}
		}
		prefix := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := l.store.List(ctx, prefix)
		if err != nil {
			log.Warnw("skipping storage prefix after listing failure", "prefix", prefix, "error", err)
			listing.Skipped = append(listing.Skipped, PartialListError{Prefix: prefix, Err: err})
			continue
		}
		collect(prefix, entries)
	}

	log.Debugf("[ObjectLister] 遍历完成, root=%q, objects=%d, skipped=%d", l.root, len(listing.Paths), len(listing.Skipped))
	return listing, nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
