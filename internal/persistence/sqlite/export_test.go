package sqlite

import "database/sql"

func (s *Storage) RawDB() *sql.DB { return s.pool.DB() }

func (s *Storage) MapError(err error) error { return s.mapper.MapError(err) }

func (s *Storage) SetIDGenerator(gen func() string) { s.idGen = gen }
