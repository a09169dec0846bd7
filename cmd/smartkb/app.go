package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"gorm.io/gorm"

	"github.com/youufis/SmartKB/internal/accesslog"
	"github.com/youufis/SmartKB/internal/config"
	"github.com/youufis/SmartKB/internal/database"
	"github.com/youufis/SmartKB/internal/embedding"
	"github.com/youufis/SmartKB/internal/filestore"
	"github.com/youufis/SmartKB/internal/history"
	"github.com/youufis/SmartKB/internal/identity"
	"github.com/youufis/SmartKB/internal/llm"
	"github.com/youufis/SmartKB/internal/logging"
	"github.com/youufis/SmartKB/internal/reranking"
	"github.com/youufis/SmartKB/internal/retrieval"
	"github.com/youufis/SmartKB/internal/session"
	"github.com/youufis/SmartKB/internal/storage"
	"github.com/youufis/SmartKB/internal/tasks"
)

const usersDBName = "users.db"

// app holds the wired components. Only the parts a command needs are built.
type app struct {
	cfg    *config.Config
	logOut io.Writer
	logger *slog.Logger

	files     *filestore.Dir
	userDB    *gorm.DB
	directory *identity.Directory
	taskStore *tasks.Store
	taskMgr   *tasks.Manager
	history   *history.Writer

	kbDB     *sql.DB
	vectors  *storage.VecStore
	chunks   *storage.ChunkStore
	embedder *embedding.LocalClient
	index    *retrieval.HybridIndex
	indexer  *retrieval.Indexer
	pipeline *retrieval.Pipeline
	llm      *llm.Client
}

// LoadConfig reads the configuration named by the persistent flags.
func LoadConfig() (*config.Config, error) {
	return config.Load(configPath, envPath)
}

func newLogger(cfg *config.Config, w io.Writer, component string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return logging.NewLogger(logging.Options{Level: cfg.Log.Level, Writer: w, Component: component})
}

// log returns a logger tagged with component.
func (a *app) log(component string) *slog.Logger {
	return newLogger(a.cfg, a.logOut, component)
}

// openIdentity opens the user directory and the task store.
func (a *app) openIdentity() error {
	files, err := filestore.New(a.cfg.DataDir)
	if err != nil {
		return err
	}
	a.files = files
	a.history = history.NewWriter(files, nil)

	a.userDB, err = database.Open(a.cfg.ResolvePath(usersDBName))
	if err != nil {
		return err
	}
	a.directory, err = identity.NewDirectory(a.userDB)
	if err != nil {
		return err
	}
	a.taskStore = tasks.NewStore(files, a.directory, a.log("tasks"))
	a.taskMgr = tasks.NewManager(a.taskStore, a.directory, files, a.log("tasks"))
	return nil
}

// openKnowledgeBase opens the vector and chunk stores and the embedder.
func (a *app) openKnowledgeBase() error {
	var err error
	a.kbDB, err = storage.Open(a.cfg.ResolvePath(a.cfg.Retrieval.DBPath))
	if err != nil {
		return err
	}
	if a.vectors, err = storage.NewVecStore(a.kbDB); err != nil {
		return err
	}
	if a.chunks, err = storage.NewChunkStore(a.kbDB); err != nil {
		return err
	}
	a.embedder = embedding.NewLocalClient(
		embedding.WithBaseURL(a.cfg.Embedding.URL),
		embedding.WithModel(a.cfg.Embedding.Model),
	)
	log := a.log("retrieval")
	a.index = retrieval.NewHybridIndex(a.embedder, a.vectors, a.chunks, log)
	a.indexer = retrieval.NewIndexer(a.embedder, a.vectors, a.chunks, a.cfg.Retrieval.MaxChunkSize, log)
	return nil
}

// openPipeline builds the chat client and the retrieval pipeline.
func (a *app) openPipeline() error {
	if a.index == nil {
		if err := a.openKnowledgeBase(); err != nil {
			return err
		}
	}
	a.llm = llm.NewClient(llm.Config{
		BaseURL: a.cfg.LLM.BaseURL,
		APIKey:  a.cfg.LLM.APIKey,
		Model:   a.cfg.LLM.Model,
	}, &http.Client{}, a.log("llm"))

	var rr retrieval.Reranker
	if a.cfg.Rerank.APIKey != "" {
		rr = reranking.NewDashScopeClient(a.cfg.Rerank.APIKey,
			reranking.WithURL(a.cfg.Rerank.URL),
			reranking.WithModel(a.cfg.Rerank.Model),
			reranking.WithTimeout(a.cfg.Rerank.Timeout),
		)
	} else {
		a.logger.Warn("rerank api key not set, keeping retrieval order")
	}

	r := a.cfg.Retrieval
	a.pipeline = retrieval.NewPipeline(a.index, rr, llm.NewContextChat(a.llm, r.TokenLimit),
		retrieval.Options{TopK: r.TopK, Window: r.Window, Alpha: r.Alpha, Timeout: r.Timeout},
		a.log("pipeline"))
	return nil
}

// newSessionService wires the conversation service on top of the pipeline.
func (a *app) newSessionService() (*session.Service, error) {
	summaries, err := session.NewSummaryCache(a.cfg.SummaryCache.Size, a.llm)
	if err != nil {
		return nil, err
	}
	return session.NewService(a.taskMgr, a.pipeline, a.log("session"),
		session.WithDirect(llm.NewDirectChat(a.llm, a.cfg.Retrieval.TokenLimit)),
		session.WithSummaries(summaries),
		session.WithPersister(a.history),
		session.WithGuest(a.cfg.AdminUser),
	), nil
}

func (a *app) newAccessLog() (*accesslog.Log, error) {
	var opts []accesslog.Option
	if a.cfg.RequestLimit.Enabled {
		opts = append(opts, accesslog.WithDailyLimit(a.cfg.RequestLimit.Daily))
	}
	return accesslog.New(a.userDB, opts...)
}

func (a *app) Close() error {
	var errs []error
	if a.kbDB != nil {
		errs = append(errs, a.kbDB.Close())
	}
	if a.userDB != nil {
		errs = append(errs, database.Close(a.userDB))
	}
	return errors.Join(errs...)
}

// newApp loads config and opens the components selected by the flags.
func newApp(logOut io.Writer, withIdentity, withKB, withPipeline bool) (*app, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logOut: logOut, logger: newLogger(cfg, logOut, "smartkb")}
	steps := []struct {
		on   bool
		open func() error
		name string
	}{
		{withIdentity, a.openIdentity, "identity"},
		{withKB, a.openKnowledgeBase, "knowledge base"},
		{withPipeline, a.openPipeline, "pipeline"},
	}
	for _, s := range steps {
		if !s.on {
			continue
		}
		if err := s.open(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("opening %s: %w", s.name, err)
		}
	}
	return a, nil
}
