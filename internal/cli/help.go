package cli

const longRootDescription = `fieldstore stores documents declared by a YAML schema of fields (text,
number, select, date, point, json, rich text, relationships, groups, tabs,
arrays and blocks) and runs them through defaults, validation and
localization before they reach SQLite, PostgreSQL or memory.

Settings are read from flags, FIELDSTORE_* environment variables and
./fieldstore.yaml, in that order:

  backend: sqlite            # sqlite|postgres|memory
  schema: schema.yaml
  sqlite: {path: app.db}
  locales: [en, es]
  fallback: true`

const rootExample = `  fieldstore schema check schema.yaml
  fieldstore create posts --set title=Hello
  fieldstore find posts 'title:~hello' --locale all
  fieldstore get posts 0190a1c2-... --depth 1`
