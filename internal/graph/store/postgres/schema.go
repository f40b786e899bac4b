package postgres

const schema = `
CREATE TABLE IF NOT EXISTS graph_entities (
	tenant_id    UUID        NOT NULL,
	id           UUID        NOT NULL,
	type         TEXT        NOT NULL,
	name         TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	country_code TEXT        NOT NULL DEFAULT '',
	category     TEXT        NOT NULL DEFAULT '',
	subcategory  TEXT        NOT NULL DEFAULT '',
	criticality  INT         NOT NULL,
	tags         JSONB,
	attributes   JSONB,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS graph_dependencies (
	tenant_id        UUID             NOT NULL,
	id               UUID             NOT NULL,
	source_entity_id UUID             NOT NULL,
	target_entity_id UUID             NOT NULL,
	dependency_type  TEXT             NOT NULL,
	layer            TEXT             NOT NULL,
	strength         DOUBLE PRECISION NOT NULL,
	is_critical      BOOLEAN          NOT NULL DEFAULT FALSE,
	description      TEXT             NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ      NOT NULL,
	updated_at       TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_graph_dependencies_source ON graph_dependencies (tenant_id, source_entity_id);
CREATE INDEX IF NOT EXISTS idx_graph_dependencies_target ON graph_dependencies (tenant_id, target_entity_id);

CREATE TABLE IF NOT EXISTS graph_constraints (
	tenant_id      UUID             NOT NULL,
	id             UUID             NOT NULL,
	type           TEXT             NOT NULL,
	name           TEXT             NOT NULL,
	severity       TEXT             NOT NULL,
	entity_types   JSONB,
	countries      JSONB,
	categories     JSONB,
	effective_date TIMESTAMPTZ      NOT NULL,
	expiry_date    TIMESTAMPTZ,
	risk_weight    DOUBLE PRECISION NOT NULL,
	is_mandatory   BOOLEAN          NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ      NOT NULL,
	updated_at     TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (tenant_id, id)
);
`
