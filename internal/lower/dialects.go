package lower

// ANSI is the generic target: standard spellings, no assumptions beyond
// SQL:2008 (FETCH FIRST row limiting, || concatenation).
func ANSI() *Backend {
	return &Backend{
		Name: "ansi",
		Dialect: Dialect{
			Name:       "ansi",
			IdentQuote: '"',
			FetchLimit: true,
			FloatCast:  "DOUBLE PRECISION",
			RandomFunc: "random",
		},
		Capabilities: capabilitySet(),
	}
}

// SQLite targets the bundled reference engine. Right and full outer joins
// are withheld: the oldest engine revisions this module executes against
// reject them.
func SQLite() *Backend {
	return &Backend{
		Name: "sqlite",
		Dialect: Dialect{
			Name:       "sqlite",
			IdentQuote: '"',
			FloatCast:  "REAL",
			RandomFunc: "random",
		},
		Capabilities: capabilitySet(CapRightJoin, CapFullOuterJoin),
	}
}

// Postgres targets PostgreSQL.
func Postgres() *Backend {
	return &Backend{
		Name: "postgres",
		Dialect: Dialect{
			Name:       "postgres",
			IdentQuote: '"',
			FloatCast:  "DOUBLE PRECISION",
			RandomFunc: "random",
		},
		Capabilities: capabilitySet(),
	}
}

// ClickHouse targets ClickHouse: backtick identifiers, concat() over ||,
// rand() over random().
func ClickHouse() *Backend {
	return &Backend{
		Name: "clickhouse",
		Dialect: Dialect{
			Name:       "clickhouse",
			IdentQuote: '`',
			ConcatFunc: true,
			FloatCast:  "Float64",
			RandomFunc: "rand",
		},
		Capabilities: capabilitySet(),
	}
}

func init() {
	for _, b := range []*Backend{ANSI(), SQLite(), Postgres(), ClickHouse()} {
		if err := Register(b); err != nil {
			panic(err)
		}
	}
}
