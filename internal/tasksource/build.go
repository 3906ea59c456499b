package tasksource

import (
	"fmt"

	"github.com/fentz26/missionctl/internal/config"
	"github.com/fentz26/missionctl/internal/logging"
)

// StoreOpener returns the task table for a database path.
type StoreOpener func(path string) (TaskStore, error)

// FromConfig builds a repository from the configured sources.
func FromConfig(sources []config.SourceConfig, open StoreOpener, logger *logging.Logger) (*Repository, error) {
	ranked := make([]Ranked, 0, len(sources))
	for _, sc := range sources {
		var src Source
		switch sc.Kind {
		case config.SourceMarkdown:
			src = NewMarkdownSource(sc.Name, sc.Path, sc.Patterns)
		case config.SourceBoard:
			src = NewBoardSource(sc.Name, sc.Path)
		case config.SourceSQLite:
			if open == nil {
				return nil, fmt.Errorf("source %s: no database opener", sc.Name)
			}
			ts, err := open(sc.Path)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", sc.Name, err)
			}
			src = NewDBSource(sc.Name, ts)
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", sc.Name, sc.Kind)
		}
		ranked = append(ranked, Ranked{Source: src, Rank: sc.Rank})
	}
	return NewRepository(logger, ranked...), nil
}
