package sqlbuilder_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openpolicylabs/govintel/pkg/shared/sqlbuilder"
)

func TestSQLBuilder(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SQL Query Builder Suite")
}

var _ = Describe("SQL Query Builder", func() {
	Describe("Simple SELECT", func() {
		It("should build basic SELECT * FROM table", func() {
			query, args := sqlbuilder.NewBuilder().
				Select("*").
				From("mentions").
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions"))
			Expect(args).To(BeEmpty())
		})

		It("should build SELECT with specific columns", func() {
			query, args := sqlbuilder.NewBuilder().
				Select("id, text, platform").
				From("mentions").
				Build()

			Expect(query).To(Equal("SELECT id, text, platform FROM mentions"))
			Expect(args).To(BeEmpty())
		})

		It("should default to SELECT * when no columns specified", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions"))
			Expect(args).To(BeEmpty())
		})
	})

	Describe("WHERE clauses", func() {
		It("should build single WHERE condition", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Where("platform = ?", "twitter").
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions WHERE platform = $1"))
			Expect(args).To(Equal([]interface{}{"twitter"}))
		})

		It("should build multiple WHERE conditions with AND", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Where("status = ?", "pending").
				Where("published_at > ?", 18).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions WHERE status = $1 AND published_at > $2"))
			Expect(args).To(Equal([]interface{}{"pending", 18}))
		})

		It("should skip empty WHERE conditions", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Where("", "").
				Where("status = ?", "pending").
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions WHERE status = $1"))
			Expect(args).To(Equal([]interface{}{"pending"}))
		})

		It("should handle WhereRaw for custom conditions", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				WhereRaw("(status = $1 OR status = $2)", "pending", "processed").
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions WHERE (status = $1 OR status = $2)"))
			Expect(args).To(Equal([]interface{}{"pending", "processed"}))
		})

		It("should handle multiple WHERE and WhereRaw together", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Where("platform = ?", "twitter").
				WhereRaw("(status = $2 OR status = $3)", "pending", "processed").
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions WHERE platform = $1 AND (status = $2 OR status = $3)"))
			Expect(args).To(Equal([]interface{}{"twitter", "pending", "processed"}))
		})
	})

	Describe("ORDER BY", func() {
		It("should build ORDER BY ASC", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				OrderBy("platform", sqlbuilder.ASC).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions ORDER BY platform ASC"))
			Expect(args).To(BeEmpty())
		})

		It("should build ORDER BY DESC", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				OrderBy("published_at", sqlbuilder.DESC).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions ORDER BY published_at DESC"))
			Expect(args).To(BeEmpty())
		})

		It("should build multiple ORDER BY clauses", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				OrderBy("status", sqlbuilder.ASC).
				OrderBy("published_at", sqlbuilder.DESC).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions ORDER BY status ASC, published_at DESC"))
			Expect(args).To(BeEmpty())
		})
	})

	Describe("LIMIT and OFFSET", func() {
		It("should build LIMIT", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Limit(10).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions LIMIT $1"))
			Expect(args).To(Equal([]interface{}{10}))
		})

		It("should build OFFSET", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Offset(20).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions OFFSET $1"))
			Expect(args).To(Equal([]interface{}{20}))
		})

		It("should build LIMIT and OFFSET together", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Limit(10).
				Offset(20).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions LIMIT $1 OFFSET $2"))
			Expect(args).To(Equal([]interface{}{10, 20}))
		})

		It("should build with WHERE, ORDER BY, LIMIT, OFFSET", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Where("status = ?", "pending").
				OrderBy("published_at", sqlbuilder.DESC).
				Limit(10).
				Offset(20).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions WHERE status = $1 ORDER BY published_at DESC LIMIT $2 OFFSET $3"))
			Expect(args).To(Equal([]interface{}{"pending", 10, 20}))
		})
	})

	Describe("Complex queries", func() {
		It("should build complete query with all clauses", func() {
			query, args := sqlbuilder.NewBuilder().
				Select("id, text, platform").
				From("mentions").
				Where("status = ?", "pending").
				Where("published_at > ?", 18).
				OrderBy("platform", sqlbuilder.ASC).
				OrderBy("published_at", sqlbuilder.DESC).
				Limit(50).
				Offset(100).
				Build()

			Expect(query).To(ContainSubstring("SELECT id, text, platform FROM mentions"))
			Expect(query).To(ContainSubstring("WHERE status = $1 AND published_at"))
			Expect(query).To(ContainSubstring("ORDER BY platform ASC, published_at DESC"))
			Expect(query).To(ContainSubstring("LIMIT $"))
			Expect(query).To(ContainSubstring("OFFSET $"))
			Expect(args).To(HaveLen(4))
			Expect(args[0]).To(Equal("pending"))
			Expect(args[1]).To(Equal(18))
			Expect(args[2]).To(Equal(50))
			Expect(args[3]).To(Equal(100))
		})

		It("should handle JSON operators in WHERE clause", func() {
			query, args := sqlbuilder.NewBuilder().
				From("issues").
				Where("metadata->>'topic' = ?", "budget").
				Where("metadata->>'severity' = ?", "high").
				Build()

			Expect(query).To(Equal("SELECT * FROM issues WHERE metadata->>'topic' = $1 AND metadata->>'severity' = $2"))
			Expect(args).To(Equal([]interface{}{"budget", "high"}))
		})
	})

	Describe("BuildCount", func() {
		It("should build COUNT(*) query with same WHERE clauses", func() {
			builder := sqlbuilder.NewBuilder().
				From("mentions").
				Where("status = ?", "pending").
				Where("published_at > ?", 18)

			query, args := builder.BuildCount()

			Expect(query).To(Equal("SELECT COUNT(*) FROM mentions WHERE status = $1 AND published_at > $2"))
			Expect(args).To(Equal([]interface{}{"pending", 18}))
		})

		It("should not include ORDER BY in count query", func() {
			builder := sqlbuilder.NewBuilder().
				From("mentions").
				Where("status = ?", "pending").
				OrderBy("published_at", sqlbuilder.DESC)

			query, args := builder.BuildCount()

			Expect(query).To(Equal("SELECT COUNT(*) FROM mentions WHERE status = $1"))
			Expect(query).ToNot(ContainSubstring("ORDER BY"))
			Expect(args).To(Equal([]interface{}{"pending"}))
		})

		It("should not include LIMIT/OFFSET in count query", func() {
			builder := sqlbuilder.NewBuilder().
				From("mentions").
				Where("status = ?", "pending").
				Limit(10).
				Offset(20)

			query, args := builder.BuildCount()

			Expect(query).To(Equal("SELECT COUNT(*) FROM mentions WHERE status = $1"))
			Expect(query).ToNot(ContainSubstring("LIMIT"))
			Expect(query).ToNot(ContainSubstring("OFFSET"))
			Expect(args).To(Equal([]interface{}{"pending"}))
		})
	})

	Describe("Helper methods", func() {
		It("should track current arg index", func() {
			builder := sqlbuilder.NewBuilder().
				Where("status = ?", "pending").
				Where("published_at > ?", 18)

			Expect(builder.CurrentArgIndex()).To(Equal(3))
		})

		It("should return current args", func() {
			builder := sqlbuilder.NewBuilder().
				Where("status = ?", "pending").
				Where("published_at > ?", 18)

			args := builder.Args()
			Expect(args).To(Equal([]interface{}{"pending", 18}))
		})
	})

	Describe("Edge cases", func() {
		It("should handle query with no conditions", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions"))
			Expect(args).To(BeEmpty())
		})

		It("should handle query with only ORDER BY", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				OrderBy("published_at", sqlbuilder.DESC).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions ORDER BY published_at DESC"))
			Expect(args).To(BeEmpty())
		})

		It("should handle query with only LIMIT", func() {
			query, args := sqlbuilder.NewBuilder().
				From("mentions").
				Limit(10).
				Build()

			Expect(query).To(Equal("SELECT * FROM mentions LIMIT $1"))
			Expect(args).To(Equal([]interface{}{10}))
		})
	})
})
