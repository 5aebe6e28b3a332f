package postgres

import "context"

const schema = `
create table if not exists users (
	id         text primary key,
	name       text not null,
	email      text not null unique,
	password   text not null,
	verified   boolean not null default false,
	avatar_id  text,
	avatar_url text,
	tokens     text[] not null default '{}',
	created_at timestamptz not null,
	updated_at timestamptz not null
);

create table if not exists auth_verification_tokens (
	owner      text primary key references users (id) on delete cascade,
	token      text not null,
	created_at timestamptz not null
);

create table if not exists password_reset_tokens (
	owner      text primary key references users (id) on delete cascade,
	token      text not null,
	created_at timestamptz not null
);

create table if not exists conversations (
	id              text primary key,
	participants    text[] not null,
	participants_id text not null unique,
	chats           jsonb not null default '[]',
	created_at      timestamptz not null,
	updated_at      timestamptz not null
);

create index if not exists conversations_participants_idx on conversations using gin (participants);

create table if not exists products (
	id              text primary key,
	owner           text not null references users (id) on delete cascade,
	name            text not null,
	price           double precision not null,
	purchasing_date timestamptz not null,
	category        text not null,
	thumbnail       text not null default '',
	description     text not null,
	created_at      timestamptz not null,
	updated_at      timestamptz not null
);

create index if not exists products_owner_idx on products (owner);
create index if not exists products_category_idx on products (category, created_at desc);

create table if not exists product_images (
	product_id text not null references products (id) on delete cascade,
	position   integer not null,
	image_id   text not null,
	url        text not null,
	primary key (product_id, image_id)
);
`

// Migrate creates tables and indexes when absent
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debugf("Applying schema")
	_, err := s.db.Exec(ctx, schema)
	return err
}
