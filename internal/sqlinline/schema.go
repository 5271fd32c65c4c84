package sqlinline

// QEnsureSchema creates the tables the repositories use. It is idempotent.
const QEnsureSchema = `--sql f64575c7-89e3-49d2-b531-5b4cb2e84123
create extension if not exists pgcrypto;

create table if not exists projects (
    id               text primary key,
    name             text not null default '',
    url              text not null,
    contract_address text,
    run_id           text not null,
    research_status  text not null check (research_status in ('pending', 'processing', 'completed', 'failed')),
    structured_data  jsonb,
    previous_structured_data jsonb,
    provenance       jsonb,
    research_error   text,
    created_at       timestamptz not null default now(),
    updated_at       timestamptz not null default now(),
    constraint projects_data_iff_completed
        check ((structured_data is not null) = (research_status = 'completed'))
);

alter table projects add column if not exists previous_structured_data jsonb;

create table if not exists generation_jobs (
    id           uuid primary key,
    project_id   text not null,
    kind         text not null check (kind in ('text', 'image', 'video')),
    status       text not null check (status in ('queued', 'running', 'completed', 'failed', 'cancelled')),
    backend      text not null default '',
    input        jsonb not null default '{}'::jsonb,
    output       jsonb,
    handle       text,
    attempts     int not null default 0,
    error        text,
    deadline     timestamptz,
    created_at   timestamptz not null default now(),
    updated_at   timestamptz not null default now(),
    completed_at timestamptz,
    constraint generation_jobs_output_iff_completed
        check ((output is not null) = (status = 'completed'))
);

create index if not exists generation_jobs_status_updated_idx
    on generation_jobs (status, updated_at);
create index if not exists generation_jobs_project_idx
    on generation_jobs (project_id);

create table if not exists integration_tokens (
    id         uuid primary key default gen_random_uuid(),
    provider   text not null unique,
    token      text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
